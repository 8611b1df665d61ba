package types

// AlignedPair is one base character together with the mark state it carries.
type AlignedPair struct {
	Char rune
	Tag  Tag
}

func Bases(pairs []AlignedPair) string {
	runes := make([]rune, len(pairs))
	for i, p := range pairs {
		runes[i] = p.Char
	}
	return string(runes)
}

func TagsOf(pairs []AlignedPair) []Tag {
	tags := make([]Tag, len(pairs))
	for i, p := range pairs {
		tags[i] = p.Tag
	}
	return tags
}
