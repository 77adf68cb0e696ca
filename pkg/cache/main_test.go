package cache

import (
	"os"
	"testing"

	"github.com/mtavana/kvtier/pkg/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogging()
	os.Exit(m.Run())
}
