package cli

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "log"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/spf13/cobra"

    "github.com/amirimatin/go-failover/pkg/bootstrap"
    "github.com/amirimatin/go-failover/pkg/mgmt"
    mgmtgrpc "github.com/amirimatin/go-failover/pkg/mgmt/grpcjson"
    mgmthttp "github.com/amirimatin/go-failover/pkg/mgmt/httpjson"
    tracing "github.com/amirimatin/go-failover/pkg/observability/tracing"
    tlsx "github.com/amirimatin/go-failover/pkg/security/tlsconfig"
)

// AddAll attaches failover subcommands (run/status/trigger/pause/resume) to
// the provided root command.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewTriggerCmd())
    root.AddCommand(NewPauseCmd())
    root.AddCommand(NewResumeCmd())
}

// NewRunCmd returns the "run" command used to start the controller.
func NewRunCmd() *cobra.Command {
    var (
        configPath                                               string
        clustersCSV, providerKind, controlPlane                  string
        providerURL, providerToken                               string
        mysqlMembersCSV, mysqlCluster                            string
        gossipNodeID, gossipBind, gossipAdv, seedsCSV, dnsNames  string
        discoveryKind                                            string
        dnsPort                                                  int
        mgmtAddr, mgmtProto                                      string
        pollInterval, gracePeriod, cooldown, failoverTimeout     time.Duration
        failureThreshold                                         int
        tlsEnable, tlsSkip, traceEnable, verboseSink             bool
        tlsCA, tlsCert, tlsKey, tlsServerName, webhookURL        string
    )
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Run the failover controller",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx, cancel := signalContext()
            defer cancel()

            if traceEnable {
                shutdown, err := tracing.Setup(true)
                if err != nil {
                    log.Printf("tracing setup error: %v", err)
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            var cfg bootstrap.Config
            if configPath != "" {
                var err error
                cfg, err = bootstrap.LoadConfig(configPath)
                if err != nil { return err }
            }
            // Flags override the file.
            if clustersCSV != "" { cfg.ClustersCSV = clustersCSV }
            if providerKind != "" { cfg.Provider = providerKind }
            if controlPlane != "" { cfg.ControlPlane = controlPlane }
            if providerURL != "" { cfg.ProviderURL = providerURL }
            if providerToken != "" { cfg.ProviderToken = providerToken }
            if mysqlCluster != "" && mysqlMembersCSV != "" {
                mc, err := parseMySQLMembers(mysqlCluster, mysqlMembersCSV)
                if err != nil { return err }
                cfg.MySQL = append(cfg.MySQL, mc)
            }
            if gossipNodeID != "" { cfg.GossipNodeID = gossipNodeID }
            if gossipBind != "" { cfg.GossipBind = gossipBind }
            if gossipAdv != "" { cfg.GossipAdv = gossipAdv }
            if seedsCSV != "" { cfg.SeedsCSV = seedsCSV }
            if discoveryKind != "" { cfg.DiscoveryKind = discoveryKind }
            if dnsNames != "" { cfg.DNSNamesCSV = dnsNames }
            if dnsPort != 0 { cfg.DNSPort = dnsPort }
            if mgmtAddr != "" { cfg.MgmtAddr = mgmtAddr }
            if mgmtProto != "" { cfg.MgmtProto = mgmtProto }
            if pollInterval > 0 { cfg.PollInterval = bootstrap.Duration(pollInterval) }
            if gracePeriod > 0 { cfg.GracePeriod = bootstrap.Duration(gracePeriod) }
            if cooldown > 0 { cfg.CooldownPeriod = bootstrap.Duration(cooldown) }
            if failoverTimeout > 0 { cfg.FailoverTimeout = bootstrap.Duration(failoverTimeout) }
            if failureThreshold > 0 { cfg.FailureThreshold = failureThreshold }
            if tlsEnable { cfg.TLSEnable = true }
            if tlsCA != "" { cfg.TLSCA = tlsCA }
            if tlsCert != "" { cfg.TLSCert = tlsCert }
            if tlsKey != "" { cfg.TLSKey = tlsKey }
            if tlsServerName != "" { cfg.TLSServerName = tlsServerName }
            if tlsSkip { cfg.TLSSkipVerify = true }
            if webhookURL != "" { cfg.WebhookURL = webhookURL }
            if verboseSink { cfg.VerboseSink = true }
            cfg.Logger = log.Default()

            rt, err := bootstrap.Run(ctx, cfg)
            if err != nil { return err }
            defer func() { _ = rt.Stop(context.Background()) }()

            fmt.Println("failover controller running. Press Ctrl+C to exit.")
            <-ctx.Done()
            return nil
        },
    }
    cmd.Flags().StringVar(&configPath, "config", "", "path to TOML config file")
    cmd.Flags().StringVar(&clustersCSV, "clusters", "", "comma-separated cluster ids to monitor")
    cmd.Flags().StringVar(&providerKind, "provider", "", "status provider: http|mysql|gossip")
    cmd.Flags().StringVar(&controlPlane, "control-plane", "", "control plane: http|mysql (default follows provider)")
    cmd.Flags().StringVar(&providerURL, "provider-url", "", "base URL of the HTTP provider API")
    cmd.Flags().StringVar(&providerToken, "provider-token", "", "bearer token for the HTTP provider API")
    cmd.Flags().StringVar(&mysqlCluster, "mysql-cluster", "", "cluster id for --mysql-members")
    cmd.Flags().StringVar(&mysqlMembersCSV, "mysql-members", "", "comma-separated id=dsn pairs in promotion priority order")
    cmd.Flags().StringVar(&gossipNodeID, "gossip-id", "", "observer node id in the gossip ring")
    cmd.Flags().StringVar(&gossipBind, "gossip-bind", "", "gossip bind addr (host:port)")
    cmd.Flags().StringVar(&gossipAdv, "gossip-adv", "", "gossip advertise addr (host:port, optional)")
    cmd.Flags().StringVar(&seedsCSV, "seeds", "", "comma-separated gossip seeds (host:port)")
    cmd.Flags().StringVar(&discoveryKind, "discovery", "", "seed discovery: static|dns")
    cmd.Flags().StringVar(&dnsNames, "dns-names", "", "comma-separated DNS names or SRV records for seed discovery")
    cmd.Flags().IntVar(&dnsPort, "dns-port", 0, "port used for A/AAAA seed lookups")
    cmd.Flags().StringVar(&mgmtAddr, "mgmt-addr", "", "management API address (e.g. :7970)")
    cmd.Flags().StringVar(&mgmtProto, "mgmt-proto", "", "management protocol: http|grpc")
    cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "evaluation cycle interval")
    cmd.Flags().DurationVar(&gracePeriod, "grace-period", 0, "grace period before an automatic failover fires")
    cmd.Flags().DurationVar(&cooldown, "cooldown", 0, "cooldown window after a failover")
    cmd.Flags().DurationVar(&failoverTimeout, "failover-timeout", 0, "bound on a failover execution")
    cmd.Flags().IntVar(&failureThreshold, "failure-threshold", 0, "consecutive failed samples before a member is unreachable")
    cmd.Flags().BoolVar(&tlsEnable, "tls-enable", false, "enable mTLS for the management API and HTTP provider")
    cmd.Flags().StringVar(&tlsCA, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "path to certificate (PEM)")
    cmd.Flags().StringVar(&tlsKey, "tls-key", "", "path to private key (PEM)")
    cmd.Flags().BoolVar(&tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
    cmd.Flags().StringVar(&webhookURL, "webhook-url", "", "POST observability events to this URL")
    cmd.Flags().BoolVar(&verboseSink, "verbose-sink", false, "log successful probes too")
    cmd.Flags().BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
    return cmd
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    var (
        addr    string
        timeout time.Duration
    )
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Fetch controller status as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            client := mgmthttp.NewClient(timeout)
            data, err := client.GetStatus(ctx, addr)
            if err != nil { return fmt.Errorf("status error: %w", err) }
            os.Stdout.Write(data)
            if len(data) == 0 || data[len(data)-1] != '\n' { os.Stdout.Write([]byte("\n")) }
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7970", "management address of the controller (host:port)")
    cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
    return cmd
}

// NewTriggerCmd returns the "trigger" command for manual failover.
func NewTriggerCmd() *cobra.Command {
    var (
        cluster, target, reason string
    )
    opts := newClientFlags()
    cmd := &cobra.Command{
        Use:   "trigger",
        Short: "Request a manual failover for a cluster",
        RunE: func(cmd *cobra.Command, args []string) error {
            if cluster == "" { return fmt.Errorf("missing required flag: --cluster") }
            client, err := opts.client()
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
            defer cancel()
            resp, err := client.PostTrigger(ctx, opts.addr, mgmt.TriggerRequest{ClusterID: cluster, TargetMemberID: target, Reason: reason})
            if err != nil { return fmt.Errorf("trigger error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(resp)
        },
    }
    cmd.Flags().StringVar(&cluster, "cluster", "", "cluster id (required)")
    cmd.Flags().StringVar(&target, "target", "", "target member id (optional; highest-priority available reader when empty)")
    cmd.Flags().StringVar(&reason, "reason", "", "audit reason for the failover")
    opts.register(cmd)
    return cmd
}

// NewPauseCmd returns the "pause" command.
func NewPauseCmd() *cobra.Command {
    var cluster, reason string
    opts := newClientFlags()
    cmd := &cobra.Command{
        Use:   "pause",
        Short: "Halt automatic failover for a cluster",
        RunE: func(cmd *cobra.Command, args []string) error {
            if cluster == "" { return fmt.Errorf("missing required flag: --cluster") }
            client, err := opts.client()
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
            defer cancel()
            resp, err := client.PostPause(ctx, opts.addr, mgmt.PauseRequest{ClusterID: cluster, Reason: reason})
            if err != nil { return fmt.Errorf("pause error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(resp)
        },
    }
    cmd.Flags().StringVar(&cluster, "cluster", "", "cluster id (required)")
    cmd.Flags().StringVar(&reason, "reason", "", "audit reason for the pause")
    opts.register(cmd)
    return cmd
}

// NewResumeCmd returns the "resume" command.
func NewResumeCmd() *cobra.Command {
    var cluster string
    opts := newClientFlags()
    cmd := &cobra.Command{
        Use:   "resume",
        Short: "Resume automatic failover for a halted cluster",
        RunE: func(cmd *cobra.Command, args []string) error {
            if cluster == "" { return fmt.Errorf("missing required flag: --cluster") }
            client, err := opts.client()
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
            defer cancel()
            resp, err := client.PostResume(ctx, opts.addr, mgmt.ResumeRequest{ClusterID: cluster})
            if err != nil { return fmt.Errorf("resume error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(resp)
        },
    }
    cmd.Flags().StringVar(&cluster, "cluster", "", "cluster id (required)")
    opts.register(cmd)
    return cmd
}

// clientFlags are the connection flags shared by the operator commands.
type clientFlags struct {
    addr, mgmtProto                       string
    timeout                               time.Duration
    tlsEnable, tlsSkip                    bool
    tlsCA, tlsCert, tlsKey, tlsServerName string
}

func newClientFlags() *clientFlags { return &clientFlags{} }

func (f *clientFlags) register(cmd *cobra.Command) {
    cmd.Flags().StringVar(&f.addr, "addr", "127.0.0.1:7970", "management address of the controller (host:port)")
    cmd.Flags().StringVar(&f.mgmtProto, "mgmt-proto", "http", "management protocol: http|grpc")
    cmd.Flags().DurationVar(&f.timeout, "timeout", 5*time.Second, "request timeout")
    cmd.Flags().BoolVar(&f.tlsEnable, "tls-enable", false, "enable mTLS for the management transport")
    cmd.Flags().StringVar(&f.tlsCA, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&f.tlsCert, "tls-cert", "", "path to client certificate (PEM)")
    cmd.Flags().StringVar(&f.tlsKey, "tls-key", "", "path to client private key (PEM)")
    cmd.Flags().BoolVar(&f.tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&f.tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
}

func (f *clientFlags) client() (mgmt.Client, error) {
    var cliTLS *tls.Config
    if f.tlsEnable {
        topts := tlsx.Options{Enable: true, CAFile: f.tlsCA, CertFile: f.tlsCert, KeyFile: f.tlsKey, InsecureSkipVerify: f.tlsSkip, ServerName: f.tlsServerName}
        var err error
        cliTLS, err = topts.Client()
        if err != nil { return nil, fmt.Errorf("tls client config: %w", err) }
    }
    switch f.mgmtProto {
    case "grpc":
        cli := mgmtgrpc.NewClient(f.timeout)
        if cliTLS != nil { cli.UseTLS(cliTLS) }
        return cli, nil
    default:
        cli := mgmthttp.NewClient(f.timeout)
        if cliTLS != nil { cli.UseTLS(cliTLS) }
        return cli, nil
    }
}

// parseMySQLMembers turns "m1=dsn1,m2=dsn2" into a cluster config.
func parseMySQLMembers(clusterID, csv string) (bootstrap.MySQLCluster, error) {
    mc := bootstrap.MySQLCluster{ID: clusterID}
    for _, pair := range strings.Split(csv, ",") {
        pair = strings.TrimSpace(pair)
        if pair == "" { continue }
        id, dsn, ok := strings.Cut(pair, "=")
        if !ok || id == "" || dsn == "" {
            return mc, fmt.Errorf("invalid --mysql-members entry %q (want id=dsn)", pair)
        }
        mc.Members = append(mc.Members, bootstrap.MySQLMember{ID: id, DSN: dsn})
    }
    if len(mc.Members) == 0 {
        return mc, fmt.Errorf("--mysql-members is empty")
    }
    return mc, nil
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
