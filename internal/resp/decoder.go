package resp

import (
	"bufio"
	"errors"
	"io"
	"strconv"
)

var (
	ErrInvalidEnding = errors.New("invalid line ending")
	ErrInvalidType   = errors.New("unexpected type byte")
)

// Decoder reads RESP values from a stream
type Decoder struct {
	rd *bufio.Reader
}

func NewDecoder(rd io.Reader) *Decoder {
	return &Decoder{rd: bufio.NewReader(rd)}
}

// Buffered returns the number of bytes that can be read from the current buffer
func (d *Decoder) Buffered() int {
	return d.rd.Buffered()
}

func (d *Decoder) Read() (Value, error) {
	_type, err := d.rd.ReadByte()
	if err != nil {
		return Value{}, err
	}

	val := Value{
		Type: _type,
	}

	switch val.Type {
	case TypeSimpleString, TypeError:
		str, err := d.readLine()
		if err != nil {
			return Value{}, err
		}
		val.String = str
		return val, nil

	case TypeInteger:
		num, err := d.readInteger()
		if err != nil {
			return Value{}, err
		}
		val.Integer = num
		return val, nil

	case TypeBulkString:
		return d.readBulkString()

	case TypeArray:
		return d.readArray()
	}

	return Value{}, ErrInvalidType
}

// readLine reads bytes up to and excluding the CRLF terminator
func (d *Decoder) readLine() ([]byte, error) {
	line, err := d.rd.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, ErrInvalidEnding
	}

	return line[:len(line)-2], nil
}

func (d *Decoder) readInteger() (int64, error) {
	line, err := d.readLine()
	if err != nil {
		return 0, err
	}

	num, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, err
	}

	return num, nil
}

func (d *Decoder) readBulkString() (Value, error) {
	length, err := d.readInteger()
	if err != nil {
		return Value{}, err
	}

	if length == -1 {
		return Value{Type: TypeBulkString, IsNull: true}, nil
	}
	if length < 0 {
		return Value{}, ErrInvalidEnding
	}

	buf := make([]byte, length+2)
	if _, err := io.ReadFull(d.rd, buf); err != nil {
		return Value{}, err
	}
	if buf[length] != '\r' || buf[length+1] != '\n' {
		return Value{}, ErrInvalidEnding
	}

	return Value{Type: TypeBulkString, String: buf[:length]}, nil
}

func (d *Decoder) readArray() (Value, error) {
	length, err := d.readInteger()
	if err != nil {
		return Value{}, err
	}

	if length == -1 {
		return Value{Type: TypeArray, IsNull: true}, nil
	}
	if length < 0 {
		return Value{}, ErrInvalidEnding
	}

	elements := make([]Value, 0, length)
	for i := int64(0); i < length; i++ {
		el, err := d.Read()
		if err != nil {
			return Value{}, err
		}
		elements = append(elements, el)
	}

	return Value{Type: TypeArray, Array: elements}, nil
}
