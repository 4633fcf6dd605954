// Package test_utils holds small helpers shared by the package tests.
package test_utils

import (
	"crypto/rand"
	"encoding/hex"
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
)

var (
	// ErrorSyntheticTestError is injected into fakes to simulate collaborator failures
	ErrorSyntheticTestError = utils.NewVerifError("SYNTHETIC_TEST_ERROR", "Synthetic test error")
)

func GetRandomString(length int) string {
	b := make([]byte, length)
	_, err := rand.Read(b)
	if err != nil {
		panic("Error generating random in GetRandomString:" + err.Error())
	}
	str := hex.EncodeToString(b)
	return str[0:length]
}
