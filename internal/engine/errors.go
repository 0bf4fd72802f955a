package engine

import (
	"errors"
	"strings"

	"github.com/duskdb/duskdb/internal/keyspace"
	"github.com/duskdb/duskdb/internal/resp"
)

// errorReply maps a keyspace error to its wire representation. WRONGTYPE
// carries its own error class prefix; everything else is a generic ERR.
func errorReply(err error) resp.Value {
	if errors.Is(err, keyspace.ErrWrongType) {
		return resp.MakeError(err.Error())
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "ERR ") {
		msg = "ERR " + msg
	}
	return resp.MakeError(msg)
}

func syntaxError() resp.Value {
	return resp.MakeError("ERR syntax error")
}

func notIntegerError() resp.Value {
	return errorReply(keyspace.ErrValueNotInteger)
}
