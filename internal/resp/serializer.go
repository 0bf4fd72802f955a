package resp

import (
	"bytes"
)

// SerializeCommand uses a standard Encoder to convert a command name plus
// its arguments into wire bytes (a RESP array of bulk strings)
func SerializeCommand(cmd string, args []Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	elements := make([]Value, 1+len(args))

	elements[0] = MakeBulkString(cmd)

	copy(elements[1:], args)

	root := MakeArray(elements)

	if err := enc.Write(root); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ParseCommand decodes a serialized command produced by SerializeCommand,
// returning the command name bytes and the argument values
func ParseCommand(payload []byte) (string, []Value, error) {
	dec := NewDecoder(bytes.NewReader(payload))

	val, err := dec.Read()
	if err != nil {
		return "", nil, err
	}
	if val.Type != TypeArray || len(val.Array) == 0 {
		return "", nil, ErrInvalidType
	}

	return string(val.Array[0].String), val.Array[1:], nil
}
