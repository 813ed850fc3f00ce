// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DNSHosts are the hosts resolved by the DNS diagnostics: the model
// registry's blob store, the usual model mirror and a general canary.
var DNSHosts = []string{
	"r2.cloudflarestorage.com",
	"huggingface.co",
	"google.com",
}

const (
	defaultResolvConf = "/etc/resolv.conf"
	dnsLookupTimeout  = 5 * time.Second
)

// hostResolver is the part of net.Resolver the diagnostics use.
type hostResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// DNSCheck is the resolution result for one host.
type DNSCheck struct {
	Resolved  bool   `json:"resolved"`
	IPAddress string `json:"ip_address,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DNSReport is the body of GET /api/check_dns.
type DNSReport struct {
	Checks    map[string]DNSCheck `json:"dns_checks"`
	SystemDNS []string            `json:"system_dns"`
	System    string              `json:"system"`
}

// handleCheckDNS handles GET /api/check_dns.
func (s *Server) handleCheckDNS(w http.ResponseWriter, r *http.Request) {
	report := CheckDNS(r.Context(), s.resolver, s.resolvConf)
	failed := 0
	for _, c := range report.Checks {
		if !c.Resolved {
			failed++
		}
	}
	s.logger.Info("DNS_CHECK", "hosts", len(report.Checks), "failed", failed, "servers", len(report.SystemDNS))
	s.writeJSON(w, http.StatusOK, report)
}

// CheckDNS resolves DNSHosts concurrently and collects the system resolver
// configuration. A nil resolver means net.DefaultResolver.
func CheckDNS(ctx context.Context, resolver hostResolver, resolvConf string) DNSReport {
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	report := DNSReport{
		Checks:    make(map[string]DNSCheck, len(DNSHosts)),
		SystemDNS: SystemDNSServers(resolvConf),
		System:    SystemName(),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, host := range DNSHosts {
		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			check := resolveHost(ctx, resolver, host)
			mu.Lock()
			report.Checks[host] = check
			mu.Unlock()
		}(host)
	}
	wg.Wait()
	return report
}

func resolveHost(ctx context.Context, resolver hostResolver, host string) DNSCheck {
	ctx, cancel := context.WithTimeout(ctx, dnsLookupTimeout)
	defer cancel()

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return DNSCheck{Resolved: false, Error: "Could not resolve hostname"}
		}
		return DNSCheck{Resolved: false, Error: err.Error()}
	}
	if len(addrs) == 0 {
		return DNSCheck{Resolved: false, Error: "Could not resolve hostname"}
	}

	// prefer IPv4, like gethostbyname
	for _, a := range addrs {
		if ip4 := a.IP.To4(); ip4 != nil {
			return DNSCheck{Resolved: true, IPAddress: ip4.String()}
		}
	}
	return DNSCheck{Resolved: true, IPAddress: addrs[0].IP.String()}
}

// SystemDNSServers returns the nameservers listed in a resolv.conf file.
// Windows has no such file and yields an empty list.
func SystemDNSServers(path string) []string {
	servers := []string{}
	if runtime.GOOS == "windows" || path == "" {
		return servers
	}

	f, err := os.Open(path)
	if err != nil {
		return servers
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "nameserver") {
			continue
		}
		if fields := strings.Fields(line); len(fields) > 1 {
			servers = append(servers, fields[1])
		}
	}
	return servers
}

// SystemName returns the operating system name in the usual capitalized
// form ("Linux", "Darwin", "Windows").
func SystemName() string {
	return cases.Title(language.Und).String(runtime.GOOS)
}
