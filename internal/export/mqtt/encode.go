package mqtt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type encodeFunc func(value any) (payload []byte, err error)

func encoderFor(name string) (encoder encodeFunc, err error) {
	switch name {
	case "", "json":
		encoder = json.Marshal
	case "msgpack":
		encoder = encodeMsgpack
	default:
		err = fmt.Errorf("unknown payload encoding %q", name)
	}
	return
}

// Field names follow the json tags so both encodings share one schema
func encodeMsgpack(value any) (payload []byte, err error) {
	var buffer bytes.Buffer
	encoder := msgpack.NewEncoder(&buffer)
	encoder.SetCustomStructTag("json")
	err = encoder.Encode(value)
	if err != nil {
		return
	}
	payload = buffer.Bytes()
	return
}
