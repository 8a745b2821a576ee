package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>" where the HMAC-SHA256
// is taken over "<t>.<body>" with the subscription secret. Binding the
// timestamp lets receivers reject replays.
const SignatureHeader = "X-Signature"

var ErrBadSignature = errors.New("webhook signature mismatch")

func sign(secret string, ts int64, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHeader returns the SignatureHeader value for body sent at now.
func SignHeader(secret string, body []byte, now time.Time) string {
	ts := now.Unix()
	return "t=" + strconv.FormatInt(ts, 10) + ",v1=" + hex.EncodeToString(sign(secret, ts, body))
}

// VerifyHeader checks a SignatureHeader value. Signatures older than
// tolerance relative to now are rejected; a zero tolerance disables the check.
func VerifyHeader(secret string, body []byte, header string, now time.Time, tolerance time.Duration) error {
	var ts int64
	var sig []byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			ts = n
		case "v1":
			b, err := hex.DecodeString(v)
			if err != nil {
				return ErrBadSignature
			}
			sig = b
		}
	}
	if ts == 0 || sig == nil {
		return ErrBadSignature
	}
	if tolerance > 0 {
		if d := now.Sub(time.Unix(ts, 0)); d > tolerance || d < -tolerance {
			return ErrBadSignature
		}
	}
	if !hmac.Equal(sign(secret, ts, body), sig) {
		return ErrBadSignature
	}
	return nil
}
