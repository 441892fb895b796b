// Package buildinfo reports the binary's version. Version, Commit and BuiltAt
// are set with -ldflags; Commit falls back to the VCS stamp of the build.
package buildinfo

import (
    "runtime"
    "runtime/debug"
    "sync"
)

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

var (
    once  sync.Once
    stamp map[string]string
)

func Info() map[string]string {
    once.Do(func() {
        stamp = map[string]string{
            "version":   Version,
            "commit":    Commit,
            "builtAt":   BuiltAt,
            "goVersion": runtime.Version(),
        }
        bi, ok := debug.ReadBuildInfo()
        if !ok {
            return
        }
        if Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
            stamp["version"] = bi.Main.Version
        }
        for _, s := range bi.Settings {
            switch s.Key {
            case "vcs.revision":
                if stamp["commit"] == "" {
                    stamp["commit"] = s.Value
                }
            case "vcs.time":
                if stamp["builtAt"] == "" {
                    stamp["builtAt"] = s.Value
                }
            case "vcs.modified":
                stamp["dirty"] = s.Value
            }
        }
    })
    out := make(map[string]string, len(stamp))
    for k, v := range stamp {
        out[k] = v
    }
    return out
}
