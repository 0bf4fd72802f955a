package keyspace

// Kind tags the value type held by an entry
type Kind byte

const (
	KindString Kind = iota + 1
	KindList
	KindHash
	KindSet
	KindZSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindHash:
		return "hash"
	case KindSet:
		return "set"
	case KindZSet:
		return "zset"
	}
	return "none"
}
