package gender

// Buckets holds the stable partitions of a ranked list.
type Buckets[T any] struct {
	Male    []T `json:"male"`
	Female  []T `json:"female"`
	Neutral []T `json:"neutral"`
}

// Partition splits items into buckets without reordering them. Unrestricted
// items land in every bucket.
func Partition[T any](items []T, restriction func(T) Gender) Buckets[T] {
	b := Buckets[T]{
		Male:    make([]T, 0, len(items)),
		Female:  make([]T, 0, len(items)),
		Neutral: make([]T, 0, len(items)),
	}
	for _, item := range items {
		switch restriction(item) {
		case Male:
			b.Male = append(b.Male, item)
		case Female:
			b.Female = append(b.Female, item)
		default:
			b.Male = append(b.Male, item)
			b.Female = append(b.Female, item)
			b.Neutral = append(b.Neutral, item)
		}
	}
	return b
}

// Select returns the bucket matching the requester's declared gender, or the
// neutral bucket.
func (b Buckets[T]) Select(requester string) (Gender, []T) {
	switch Normalize(requester) {
	case Male:
		return Male, b.Male
	case Female:
		return Female, b.Female
	default:
		return Unrestricted, b.Neutral
	}
}

// Name returns the bucket label used in API responses.
func (g Gender) Name() string {
	if g == Unrestricted {
		return "neutral"
	}
	return string(g)
}
