package dns

import (
    "context"
    "net"
    "sort"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/go-failover/pkg/discovery"
)

// Options configures DNS-based seed discovery for the gossip ring.
type Options struct {
    // Names are SRV records or hostnames to resolve. Examples:
    // "_failover._tcp.db.internal" (SRV) or "agents.db.internal" (A/AAAA).
    Names []string

    // Port used for A/AAAA answers, which carry no port. Default 7946
    // (the memberlist default).
    Port int

    // Refresh controls cache staleness. Default 5s.
    Refresh time.Duration

    // Resolver optionally overrides the DNS resolver.
    Resolver *net.Resolver
}

type impl struct {
    opts  Options
    mu    sync.Mutex
    last  time.Time
    cache []string
}

// New returns a DNS-backed discovery that resolves SRV and A/AAAA names and
// caches results for the Refresh duration.
func New(opts Options) discovery.Discovery {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    if opts.Port == 0 { opts.Port = 7946 }
    if opts.Resolver == nil { opts.Resolver = net.DefaultResolver }
    return &impl{opts: opts}
}

func (d *impl) Seeds() []string {
    d.mu.Lock()
    defer d.mu.Unlock()
    if time.Since(d.last) < d.opts.Refresh && len(d.cache) > 0 {
        return append([]string(nil), d.cache...)
    }
    d.cache = d.resolveAll(context.Background())
    d.last = time.Now()
    return append([]string(nil), d.cache...)
}

func (d *impl) resolveAll(ctx context.Context) []string {
    seen := make(map[string]struct{})
    add := func(hp string) {
        if _, ok := seen[hp]; !ok { seen[hp] = struct{}{} }
    }
    for _, name := range d.opts.Names {
        name = strings.TrimSpace(name)
        switch {
        case name == "":
        case strings.Contains(name, ":") && !strings.HasPrefix(name, "_"):
            // Already host:port, take as-is.
            add(name)
        case strings.HasPrefix(name, "_"):
            for _, hp := range d.lookupSRV(ctx, name) { add(hp) }
        default:
            for _, hp := range d.lookupHost(ctx, name) { add(hp) }
        }
    }
    out := make([]string, 0, len(seen))
    for hp := range seen { out = append(out, hp) }
    sort.Strings(out)
    return out
}

func (d *impl) lookupSRV(ctx context.Context, fqdn string) []string {
    // Expect pattern: _service._proto.name
    parts := strings.SplitN(fqdn, ".", 3)
    if len(parts) < 3 { return nil }
    svc := strings.TrimPrefix(parts[0], "_")
    proto := strings.TrimPrefix(parts[1], "_")
    _, addrs, err := d.opts.Resolver.LookupSRV(ctx, svc, proto, parts[2])
    if err != nil { return nil }
    out := make([]string, 0, len(addrs))
    for _, a := range addrs {
        host := strings.TrimSuffix(a.Target, ".")
        out = append(out, net.JoinHostPort(host, strconv.Itoa(int(a.Port))))
    }
    return out
}

func (d *impl) lookupHost(ctx context.Context, host string) []string {
    ips, err := d.opts.Resolver.LookupHost(ctx, host)
    if err != nil { return nil }
    out := make([]string, 0, len(ips))
    for _, ip := range ips {
        out = append(out, net.JoinHostPort(ip, strconv.Itoa(d.opts.Port)))
    }
    return out
}
