package keyvalue

// T is a key value pair of diagnostic context.
type T struct {
	Key   string
	Value string
}

// KV creates a new key value pair.
func KV(k, v string) T {
	return T{
		Key:   k,
		Value: v,
	}
}
