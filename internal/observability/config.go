package observability

// Config captures opt-in observability toggles that wire into the server.
type Config struct {
	// EnablePprof mounts the net/http/pprof handlers under /debug/pprof/.
	EnablePprof bool `yaml:"enable_pprof"`
}
