package security

import (
	"net"
	"testing"

	"github.com/hive-corporation/iocscope/internal/config"
)

func TestDefaultListenAddressesAreLoopback(t *testing.T) {
	// Test that both APIs default to localhost when nothing is configured
	t.Setenv("REST_API_ADDR", "")
	t.Setenv("GRPC_LISTEN_ADDR", "")

	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for name, addr := range map[string]string{"rest": cfg.RESTAddr, "grpc": cfg.GRPCAddr} {
		t.Run(name, func(t *testing.T) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				t.Fatalf("invalid default address %q: %v", addr, err)
			}
			if host != "localhost" {
				t.Errorf("Expected default to bind localhost, got %s", addr)
			}

			// Bind the same host on an ephemeral port and verify it is loopback only
			lis, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
			if err != nil {
				t.Fatalf("Failed to bind to localhost: %v", err)
			}
			defer lis.Close()

			ip := lis.Addr().(*net.TCPAddr).IP
			if !ip.IsLoopback() {
				t.Errorf("Expected loopback address, got %s", ip)
			}
		})
	}
}

func TestExternalBindingRequiresExplicitConfiguration(t *testing.T) {
	t.Setenv("GRPC_LISTEN_ADDR", "0.0.0.0:50052")

	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GRPCAddr != "0.0.0.0:50052" {
		t.Errorf("Expected 0.0.0.0:50052, got %s", cfg.GRPCAddr)
	}
	if cfg.RESTAddr != "localhost:8080" {
		t.Errorf("REST address should keep its loopback default, got %s", cfg.RESTAddr)
	}
}

func TestInvalidListenAddresses(t *testing.T) {
	invalidAddresses := []string{
		"invalid:address",
		":99999", // Port out of range
		"999.999.999.999:50051",
	}

	for _, addr := range invalidAddresses {
		t.Run(addr, func(t *testing.T) {
			if lis, err := net.Listen("tcp", addr); err == nil {
				lis.Close()
				t.Errorf("Expected error for invalid address %s", addr)
			}
		})
	}
}
