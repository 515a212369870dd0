package models

import "testing"

func TestVPNConfigurationValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     VPNConfiguration
		wantErr bool
	}{
		{"valid", VPNConfiguration{Protocol: ProtocolVLESS, Server: "h", Port: 443, QualityScore: 0.5}, false},
		{"empty server", VPNConfiguration{Protocol: ProtocolVLESS, Server: "", Port: 443}, true},
		{"port zero", VPNConfiguration{Protocol: ProtocolVLESS, Server: "h", Port: 0}, true},
		{"port too big", VPNConfiguration{Protocol: ProtocolVLESS, Server: "h", Port: 65536}, true},
		{"port boundary low", VPNConfiguration{Protocol: ProtocolVLESS, Server: "h", Port: 1}, false},
		{"port boundary high", VPNConfiguration{Protocol: ProtocolVLESS, Server: "h", Port: 65535}, false},
		{"bad protocol", VPNConfiguration{Protocol: "wireguard", Server: "h", Port: 443}, true},
		{"quality out of range", VPNConfiguration{Protocol: ProtocolVLESS, Server: "h", Port: 443, QualityScore: 1.5}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestVPNConfigurationMetadata(t *testing.T) {
	var c VPNConfiguration
	if _, ok := c.GetMetadata("x"); ok {
		t.Fatal("expected no metadata on zero value")
	}
	c.SetMetadata("parser", "vmess")
	v, ok := c.GetMetadata("parser")
	if !ok || v != "vmess" {
		t.Fatalf("got %q, %v", v, ok)
	}
}

func TestIsPrivateOrLoopback(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1":    true,
		"10.0.0.5":     true,
		"192.168.1.1":  true,
		"169.254.1.1":  true,
		"8.8.8.8":      false,
		"example.com":  false,
	}
	for server, want := range cases {
		c := VPNConfiguration{Server: server}
		if got := c.IsPrivateOrLoopback(); got != want {
			t.Errorf("IsPrivateOrLoopback(%q) = %v, want %v", server, got, want)
		}
	}
}
