package client

import "crypto/sha1"

// scramblePassword computes the mysql_native_password challenge
// response, spec.md §4.4 step 2:
//
//	scramble = sha1(password) XOR sha1(salt || sha1(sha1(password)))
//
// An empty password yields an empty scramble.
func scramblePassword(password string, salt []byte) []byte {
	if len(password) == 0 {
		return nil
	}
	stage1 := sha1.Sum([]byte(password))

	stage2 := sha1.Sum(stage1[:])

	h := sha1.New()
	h.Write(salt)
	h.Write(stage2[:])
	stage3 := h.Sum(nil)

	out := make([]byte, len(stage3))
	for i := range out {
		out[i] = stage1[i] ^ stage3[i]
	}
	return out
}
