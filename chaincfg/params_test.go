package chaincfg

import "testing"

func TestAddressHRP(t *testing.T) {
	tests := []struct {
		name string
		p    *Params
		want string
	}{
		{"undeployed", &UndeployedParams, "mn_addr_undeployed"},
		{"test", &TestParams, "mn_addr_test"},
		{"preview", &PreviewParams, "mn_addr_preview"},
		{"mainnet", &MainnetParams, "mn_addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.AddressHRP(); got != tt.want {
				t.Errorf("AddressHRP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseNetworkRoundTrip(t *testing.T) {
	for _, n := range []Network{Undeployed, Test, Preview, Mainnet} {
		got, err := ParseNetwork(n.String())
		if err != nil {
			t.Fatalf("ParseNetwork(%q): %v", n.String(), err)
		}
		if got != n {
			t.Errorf("ParseNetwork(%q) = %v, want %v", n.String(), got, n)
		}
	}
}

func TestParseNetworkUnknown(t *testing.T) {
	if _, err := ParseNetwork("nonexistent"); err != ErrUnknownNetwork {
		t.Errorf("expected ErrUnknownNetwork, got %v", err)
	}
}
