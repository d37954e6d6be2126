//go:build js && wasm

// Command wasm exposes the native commitment and encoding helpers to the
// browser, so a page can compute what it will submit without a server.
package main

import (
	"syscall/js"

	"zkpoe/circuits/commitment"
	"zkpoe/circuits/disclosure"
	"zkpoe/pkg/field"
)

// computeCommitment(documentField, salt) returns the commitment hex.
func computeCommitment(_ js.Value, args []js.Value) any {
	if len(args) < 2 {
		return errorResponse("args: documentField, salt")
	}
	doc, err := field.ParseBytes31(args[0].String())
	if err != nil {
		return errorResponse("invalid document field: " + err.Error())
	}
	salt, err := field.ParseBytes31(args[1].String())
	if err != nil {
		return errorResponse("invalid salt: " + err.Error())
	}
	return map[string]any{
		"commitment": commitment.Hash(doc, salt).Hex(),
	}
}

// computeDomainHash(domainOrEmail) returns the domain hash hex.
func computeDomainHash(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return errorResponse("args: domainOrEmail")
	}
	h, err := disclosure.HashDomain(args[0].String())
	if err != nil {
		return errorResponse(err.Error())
	}
	return map[string]any{
		"domainHash": h.Hex(),
	}
}

// documentField(contents or sha256 hex) returns the document digest and its
// field element. A string argument is a digest computed by the page, a
// Uint8Array is hashed here.
func documentField(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return errorResponse("args: Uint8Array or sha256 hex")
	}
	var d field.Digest
	if args[0].Type() == js.TypeString {
		var err error
		if d, err = field.ParseDigest(args[0].String()); err != nil {
			return errorResponse(err.Error())
		}
	} else {
		data := make([]byte, args[0].Get("length").Int())
		js.CopyBytesToGo(data, args[0])
		d = field.DigestBytes(data)
	}
	return map[string]any{
		"digest":        d.Hex(),
		"documentField": field.ToFieldElement(d).Hex(),
	}
}

// encodeFileType(fileType) returns the 20 contract words.
func encodeFileType(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return errorResponse("args: fileType")
	}
	enc, err := field.EncodeFixedWidth(args[0].String(), disclosure.FileTypeLen)
	if err != nil {
		return errorResponse(err.Error())
	}
	var words []any
	for _, ch := range enc {
		words = append(words, field.Element(field.Uint64Word(uint64(ch))).Hex())
	}
	return map[string]any{
		"words": words,
	}
}

// decodeFileType(words) reverses encodeFileType.
func decodeFileType(_ js.Value, args []js.Value) any {
	if len(args) < 1 || args[0].Get("length").Int() != disclosure.FileTypeLen {
		return errorResponse("args: array of 20 words")
	}
	var out []byte
	for i := range disclosure.FileTypeLen {
		w, err := field.ParseElement(args[0].Index(i).String())
		if err != nil {
			return errorResponse(err.Error())
		}
		v, err := field.WordUint64(w)
		if err != nil || v > 0xff {
			return errorResponse("word is not a single byte")
		}
		if v != 0 {
			out = append(out, byte(v))
		}
	}
	return map[string]any{
		"fileType": string(out),
	}
}

func errorResponse(msg string) map[string]any {
	return map[string]any{
		"error": msg,
	}
}

func main() {
	c := make(chan struct{})
	js.Global().Set("computeCommitment", js.FuncOf(computeCommitment))
	js.Global().Set("computeDomainHash", js.FuncOf(computeDomainHash))
	js.Global().Set("documentField", js.FuncOf(documentField))
	js.Global().Set("encodeFileType", js.FuncOf(encodeFileType))
	js.Global().Set("decodeFileType", js.FuncOf(decodeFileType))
	<-c
}
