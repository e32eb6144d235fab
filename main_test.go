package chain_test

import (
	"errors"
	"testing"

	"go.uber.org/goleak"
)

var errTest = errors.New("test error")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
