// internal/monitoring/drift.go
package monitoring

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
)

// Resolver is the subset of *net.Resolver used for drift detection.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// DriftDetector compares a configuration's expected DNS record with the
// live answer.
type DriftDetector struct {
	resolver Resolver
}

func NewDriftDetector(r Resolver) *DriftDetector {
	if r == nil {
		r = net.DefaultResolver
	}
	return &DriftDetector{resolver: r}
}

// Detect reports true when the live records do not contain the configured
// target. Configurations without a record type or target never drift.
func (d *DriftDetector) Detect(ctx context.Context, cfg *database.DomainConfiguration) (bool, error) {
	target := strings.TrimSpace(cfg.TargetValue)
	if cfg.RecordType == "" || target == "" {
		return false, nil
	}

	var (
		live []string
		err  error
	)
	switch strings.ToUpper(cfg.RecordType) {
	case "A":
		live, err = d.lookupIP(ctx, "ip4", cfg.Domain)
	case "AAAA":
		live, err = d.lookupIP(ctx, "ip6", cfg.Domain)
	case "CNAME":
		var cname string
		cname, err = d.resolver.LookupCNAME(ctx, cfg.Domain)
		live = []string{cname}
	case "TXT":
		live, err = d.resolver.LookupTXT(ctx, cfg.Domain)
	case "MX":
		var records []*net.MX
		records, err = d.resolver.LookupMX(ctx, cfg.Domain)
		for _, mx := range records {
			live = append(live, mx.Host)
		}
	case "NS":
		var records []*net.NS
		records, err = d.resolver.LookupNS(ctx, cfg.Domain)
		for _, ns := range records {
			live = append(live, ns.Host)
		}
	default:
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s %s: %w", cfg.RecordType, cfg.Domain, err)
	}

	for _, v := range live {
		if sameRecord(cfg.RecordType, v, target) {
			return false, nil
		}
	}
	return true, nil
}

func (d *DriftDetector) lookupIP(ctx context.Context, network, host string) ([]string, error) {
	ips, err := d.resolver.LookupIP(ctx, network, host)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.String())
	}
	return out, nil
}

func sameRecord(recordType, live, target string) bool {
	switch strings.ToUpper(recordType) {
	case "A", "AAAA":
		a, b := net.ParseIP(live), net.ParseIP(target)
		return a != nil && b != nil && a.Equal(b)
	case "TXT":
		return live == target
	default:
		// Host names: case and trailing dot insensitive.
		return strings.EqualFold(strings.TrimSuffix(live, "."), strings.TrimSuffix(target, "."))
	}
}
