package tunnel

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// PortPlaceholder is replaced by the local port in provider command templates.
const PortPlaceholder = "{port}"

// Provider is a public relay able to expose a local port.
type Provider int

const (
	LocalTunnel Provider = iota
	LocalhostRun
	Pinggy
	Serveo
	// Ngrok uses the ngrok agent SDK instead of a child process and needs an
	// authtoken.
	Ngrok
)

// Descriptor tells a process session how to reach one relay: the argv to run
// and the stdout pattern whose first group is the public URL.
type Descriptor struct {
	Name       string
	Command    []string
	URLPattern *regexp.Regexp
}

var descriptors = map[Provider]Descriptor{
	LocalTunnel: {
		Name:       "localtunnel",
		Command:    []string{"lt", "-p", PortPlaceholder, "-h", "https://localtunnel.me"},
		URLPattern: regexp.MustCompile(`your url is: (https://[\w\-.]+)`),
	},
	LocalhostRun: {
		Name:       "localhost.run",
		Command:    []string{"ssh", "-R", "80:localhost:" + PortPlaceholder, "nokey@localhost.run", "-o", "StrictHostKeyChecking=no"},
		URLPattern: regexp.MustCompile(`tunneled with tls termination, (https://[\w\-.]+\.lhr\.life)`),
	},
	Pinggy: {
		Name:       "pinggy",
		Command:    []string{"ssh", "-p", "443", "-R0:localhost:" + PortPlaceholder, "a.pinggy.io", "-o", "StrictHostKeyChecking=no"},
		URLPattern: regexp.MustCompile(`(https://[\w\-.]+\.free\.pinggy\.link)`),
	},
	Serveo: {
		Name:       "serveo",
		Command:    []string{"ssh", "-R", "80:localhost:" + PortPlaceholder, "serveo.net", "-o", "StrictHostKeyChecking=no"},
		URLPattern: regexp.MustCompile(`Forwarding HTTP traffic from (https://[\w\-.]+\.serveo\.net)`),
	},
	Ngrok: {
		Name: "ngrok",
	},
}

// Providers lists every known provider.
func Providers() []Provider {
	return []Provider{LocalTunnel, LocalhostRun, Pinggy, Serveo, Ngrok}
}

func (p Provider) String() string {
	if d, ok := descriptors[p]; ok {
		return d.Name
	}
	return "Provider(" + strconv.Itoa(int(p)) + ")"
}

// Descriptor returns the relay's command template and URL pattern.
func (p Provider) Descriptor() Descriptor {
	return descriptors[p]
}

// ParseProvider maps a provider name to a Provider.
func ParseProvider(name string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, d := range descriptors {
		if d.Name == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown tunnel provider %q", name)
}

// Argv returns the command with every placeholder replaced by port.
func (d Descriptor) Argv(port int) []string {
	p := strconv.Itoa(port)
	argv := make([]string, len(d.Command))
	for i, arg := range d.Command {
		argv[i] = strings.ReplaceAll(arg, PortPlaceholder, p)
	}
	return argv
}

// ExtractURL returns the public URL if line announces one.
func (d Descriptor) ExtractURL(line string) (string, bool) {
	if d.URLPattern == nil {
		return "", false
	}
	m := d.URLPattern.FindStringSubmatch(line)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// Registry is the set of providers the supervisor picks from.
type Registry []Provider

// NewRegistry resolves provider names. Ngrok is only accepted when
// ngrokEnabled is set.
func NewRegistry(names []string, ngrokEnabled bool) (Registry, error) {
	var r Registry
	for _, name := range names {
		p, err := ParseProvider(name)
		if err != nil {
			return nil, err
		}
		if p == Ngrok && !ngrokEnabled {
			return nil, fmt.Errorf("provider ngrok requires tunnel.ngrok.authtoken")
		}
		if !slices.Contains(r, p) {
			r = append(r, p)
		}
	}
	if len(r) == 0 {
		return nil, fmt.Errorf("no tunnel providers configured")
	}
	return r, nil
}

// Pick returns a provider chosen uniformly at random.
func (r Registry) Pick(rnd *rand.Rand) Provider {
	return r[rnd.IntN(len(r))]
}

// Names returns the provider names in registry order.
func (r Registry) Names() []string {
	names := make([]string, len(r))
	for i, p := range r {
		names[i] = p.String()
	}
	return names
}
