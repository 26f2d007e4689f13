package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyHMACSHA256(t *testing.T) {
	payload := []byte(`{"event":{"id":"evt-1","type":"charge:confirmed"}}`)
	signature := SignHMACSHA256("secret", payload)

	cases := []struct {
		name      string
		secret    string
		payload   []byte
		signature string
		want      bool
	}{
		{"valid", "secret", payload, signature, true},
		{"uppercase hex", "secret", payload, strings.ToUpper(signature), true},
		{"surrounding whitespace", "secret", payload, " " + signature + "\n", true},
		{"wrong secret", "other", payload, signature, false},
		{"altered payload", "secret", append([]byte(" "), payload...), signature, false},
		{"truncated signature", "secret", payload, signature[:32], false},
		{"not hex", "secret", payload, "sha256=" + signature, false},
		{"empty signature", "secret", payload, "", false},
		{"empty secret", "", payload, SignHMACSHA256("", payload), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, VerifyHMACSHA256(tc.secret, tc.payload, tc.signature))
		})
	}
}

func TestSignHMACSHA256_KnownVector(t *testing.T) {
	// RFC 4231 test case 2
	got := SignHMACSHA256("Jefe", []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestGenerateRandomString(t *testing.T) {
	first, err := GenerateRandomString(16)
	require.NoError(t, err)
	second, err := GenerateRandomString(16)
	require.NoError(t, err)

	assert.Len(t, first, 16)
	assert.NotEqual(t, first, second)
}
