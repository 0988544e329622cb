package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloadRequest struct {
	Reason string `json:"reason"`
}

func TestDecodeJSON(t *testing.T) {
	req, err := DecodeJSON[reloadRequest]([]byte(`{"reason":"nightly"}`))
	require.NoError(t, err)
	assert.Equal(t, "nightly", req.Reason)

	_, err = DecodeJSON[reloadRequest]([]byte(`{"reason":`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncode(t *testing.T) {
	messages, err := encode([]Event{
		{Key: "1", Value: map[string]int{"id": 1}},
		{Key: "2", Value: reloadRequest{Reason: "x"}},
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, []byte("1"), messages[0].Key)
	assert.JSONEq(t, `{"id":1}`, string(messages[0].Value))
	assert.JSONEq(t, `{"reason":"x"}`, string(messages[1].Value))

	_, err = encode([]Event{{Key: "ok", Value: 1}, {Key: "bad", Value: make(chan int)}})
	assert.ErrorContains(t, err, `"bad"`)
}
