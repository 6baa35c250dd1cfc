package codec

// KV is a key/value pair payload, the typical stored value for map-like uses
// of the tree (the key-extraction func then selects First).
type KV[A, B any] struct {
	First  A
	Second B
}

// Pair combines two codecs into a codec for KV pairs. The first encoding is
// laid out at offset 0, the second right after it.
func Pair[A, B any](first Payload[A], second Payload[B]) Payload[KV[A, B]] {
	return pairCodec[A, B]{first: first, second: second}
}

type pairCodec[A, B any] struct {
	first  Payload[A]
	second Payload[B]
}

func (c pairCodec[A, B]) Size() int { return c.first.Size() + c.second.Size() }

func (c pairCodec[A, B]) Encode(dst []byte, v KV[A, B]) error {
	if len(dst) < c.Size() {
		return ErrShortBuffer
	}
	if err := c.first.Encode(dst[:c.first.Size()], v.First); err != nil {
		return err
	}
	return c.second.Encode(dst[c.first.Size():c.Size()], v.Second)
}

func (c pairCodec[A, B]) Decode(src []byte) (KV[A, B], error) {
	var out KV[A, B]
	if len(src) < c.Size() {
		return out, ErrShortBuffer
	}
	a, err := c.first.Decode(src[:c.first.Size()])
	if err != nil {
		return out, err
	}
	b, err := c.second.Decode(src[c.first.Size():c.Size()])
	if err != nil {
		return out, err
	}
	out.First = a
	out.Second = b
	return out, nil
}

func (c pairCodec[A, B]) Validate(src []byte) error {
	if len(src) < c.Size() {
		return ErrShortBuffer
	}
	if v, ok := c.first.(Validator); ok {
		if err := v.Validate(src[:c.first.Size()]); err != nil {
			return err
		}
	}
	if v, ok := c.second.(Validator); ok {
		return v.Validate(src[c.first.Size():c.Size()])
	}
	return nil
}
