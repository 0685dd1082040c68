// Package json is the JSON codec shared by the gateway. It is backed by
// json-iterator configured for full encoding/json compatibility.
package json

import (
	stdjson "encoding/json"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	Marshal    = json.Marshal
	Unmarshal  = json.Unmarshal
	NewDecoder = json.NewDecoder
	NewEncoder = json.NewEncoder
	Valid      = json.Valid

	// Indent reformats JSON text without decoding it. json-iterator has no
	// equivalent.
	Indent = stdjson.Indent
)

// RawMessage is the encoding/json type, which json-iterator encodes and
// decodes verbatim.
type RawMessage = stdjson.RawMessage

type Decoder = jsoniter.Decoder

type Encoder = jsoniter.Encoder
