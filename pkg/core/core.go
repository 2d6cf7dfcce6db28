// Package core - small helpers shared by the protocol packages.
package core

import (
	cryptorand "crypto/rand"
	"strings"
)

const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
const maxSize = byte(len(digits))

// RandString - random string from the base36 alphabet
func RandString(size byte) string {
	b := make([]byte, size)
	if _, err := cryptorand.Read(b); err != nil {
		panic(err)
	}
	for i := byte(0); i < size; i++ {
		b[i] = digits[b[i]%maxSize]
	}
	return string(b)
}

// Between - substring of s between sub1 and sub2, empty if any is missing
func Between(s, sub1, sub2 string) string {
	i := strings.Index(s, sub1)
	if i < 0 {
		return ""
	}
	s = s[i+len(sub1):]
	i = strings.Index(s, sub2)
	if i < 0 {
		return ""
	}
	return s[:i]
}
