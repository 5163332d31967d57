// Copyright (c) Chilsonite Authors. All Rights Reserved.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package protocol

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sid := uuid.Must(uuid.NewRandom())
	original := Data(sid, 7, []byte("hello world"))

	wire, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(wire)
	require.NoError(t, err)

	assert.Equal(t, original.Type, decoded.Type)
	assert.Equal(t, original.SessionID, decoded.SessionID)
	assert.Equal(t, original.Seq, decoded.Seq)
	assert.Equal(t, original.Data, decoded.Data)
}

func TestDataFieldIsStandardBase64NoLinebreaks(t *testing.T) {
	sid := uuid.Must(uuid.NewRandom())
	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i)
	}
	e := Data(sid, 1, payload)

	wire, err := Encode(e)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(wire, &raw))

	encoded, ok := raw["data"].(string)
	require.True(t, ok, "data field must be a JSON string")
	assert.NotContains(t, encoded, "\n")

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"session_id":"00000000-0000-0000-0000-000000000000"}`))
	assert.Error(t, err)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestRegisterConstructor(t *testing.T) {
	e := Register("US", "203.0.113.5", "linux")
	assert.Equal(t, TypeRegister, e.Type)
	assert.Equal(t, "US", e.CountryCode)
	assert.Equal(t, "203.0.113.5", e.PublicIP)
	assert.Equal(t, "linux", e.OSName)
}

func TestConnectResultVariants(t *testing.T) {
	sid := uuid.Must(uuid.NewRandom())

	ok := ConnectResultOK(sid, "10.0.0.5:54321")
	assert.True(t, ok.OK)
	assert.Equal(t, "10.0.0.5:54321", ok.BoundAddr)

	failed := ConnectResultErr(sid, "connection refused")
	assert.False(t, failed.OK)
	assert.Equal(t, "connection refused", failed.ErrorMsg)
}
