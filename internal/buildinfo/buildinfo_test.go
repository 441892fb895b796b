package buildinfo

import (
    "runtime"
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
    info := Info()
    assert.Equal(t, runtime.Version(), info["goVersion"])
    assert.NotEmpty(t, info["version"])

    info["version"] = "mutated"
    assert.NotEqual(t, "mutated", Info()["version"])
}
