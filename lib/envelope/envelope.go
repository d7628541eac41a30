// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"fmt"
	"math"
	"net/http"
	"net/textproto"
	"slices"
)

// HeaderField is one header line. It encodes as a two-element CBOR
// array so a header list stays compact and ordered.
type HeaderField struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Value []byte
}

// ResponseEnvelope is a complete HTTP response as delivered to a
// controller.
type ResponseEnvelope struct {
	StatusCode uint16
	Headers    []HeaderField
	Body       []byte
}

// FromHTTP builds an envelope from a response status, header map, and
// already-read body.
//
// http.Header does not keep the relative order of different names, so
// names are emitted in sorted canonical order. Values for one name
// keep the order in which they arrived.
func FromHTTP(status int, header http.Header, body []byte) (ResponseEnvelope, error) {
	if status < 0 || status > math.MaxUint16 {
		return ResponseEnvelope{}, fmt.Errorf("status code %d out of range", status)
	}

	names := make([]string, 0, len(header))
	count := 0
	for name, values := range header {
		names = append(names, name)
		count += len(values)
	}
	slices.Sort(names)

	fields := make([]HeaderField, 0, count)
	for _, name := range names {
		for _, value := range header[name] {
			fields = append(fields, HeaderField{Name: name, Value: []byte(value)})
		}
	}

	return ResponseEnvelope{
		StatusCode: uint16(status),
		Headers:    fields,
		Body:       body,
	}, nil
}

// Values returns every value recorded for name, compared
// case-insensitively, in envelope order.
func (e ResponseEnvelope) Values(name string) [][]byte {
	canonical := textproto.CanonicalMIMEHeaderKey(name)
	var values [][]byte
	for _, field := range e.Headers {
		if textproto.CanonicalMIMEHeaderKey(field.Name) == canonical {
			values = append(values, field.Value)
		}
	}
	return values
}

// Header converts the envelope's headers back into an http.Header.
func (e ResponseEnvelope) Header() http.Header {
	header := make(http.Header, len(e.Headers))
	for _, field := range e.Headers {
		header.Add(field.Name, string(field.Value))
	}
	return header
}
