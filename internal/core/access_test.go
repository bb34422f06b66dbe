package core

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestCheckView(t *testing.T) {
	from := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	to := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	r := Receipt{ID: 4, From: from, To: to}

	cases := []struct {
		name   string
		viewer string
		want   ViewDecision
	}{
		{"sender", from.Hex(), ViewAllowed},
		{"recipient", to.Hex(), ViewAllowed},
		{"recipient lowercase", strings.ToLower(to.Hex()), ViewAllowed},
		{"other", "0x00000000000000000000000000000000000000c3", ViewNotParticipant},
		{"garbage", "not-an-address", ViewNotParticipant},
		{"no wallet", "", ViewNoWallet},
		{"blank wallet", "   ", ViewNoWallet},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CheckView(r, tc.viewer); got != tc.want {
				t.Fatalf("CheckView = %s, want %s", got, tc.want)
			}
			if CanView(r, tc.viewer) != (tc.want == ViewAllowed) {
				t.Fatalf("CanView disagrees with CheckView")
			}
		})
	}
}
