// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package tcptls

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// dscpValues maps RFC 2474/4594 DSCP names to their 6-bit code points,
// adapted from the teacher's agent.dscpValues table used to prioritize
// backup traffic; here it lets a tcptls destination mark its outbound
// syslog stream the way syslog-ng's ip-tos() destination option does.
var dscpValues = map[string]int{
	"EF": 46,

	"AF11": 10, "AF12": 12, "AF13": 14,
	"AF21": 18, "AF22": 20, "AF23": 22,
	"AF31": 26, "AF32": 28, "AF33": 30,
	"AF41": 34, "AF42": 36, "AF43": 38,

	"CS0": 0, "CS1": 8, "CS2": 16, "CS3": 24,
	"CS4": 32, "CS5": 40, "CS6": 48, "CS7": 56,
}

// ParseDSCP converts a DSCP name ("EF", "AF41", "CS5") to its numeric
// code point. An empty name returns 0 (disabled) with no error.
func ParseDSCP(name string) (int, error) {
	name = strings.TrimSpace(strings.ToUpper(name))
	if name == "" {
		return 0, nil
	}
	val, ok := dscpValues[name]
	if !ok {
		return 0, fmt.Errorf("tcptls: unknown DSCP value %q (valid: EF, AF11..AF43, CS0..CS7)", name)
	}
	return val, nil
}

// ApplyDSCP sets the IP_TOS socket option on conn's underlying TCP
// connection to dscp's code point, a no-op when dscp is 0.
func ApplyDSCP(conn *tls.Conn, dscp int) error {
	if dscp == 0 {
		return nil
	}
	tcpConn, ok := conn.NetConn().(*net.TCPConn)
	if !ok {
		return fmt.Errorf("tcptls: cannot apply DSCP: underlying conn is %T, not *net.TCPConn", conn.NetConn())
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return fmt.Errorf("tcptls: getting raw conn for DSCP: %w", err)
	}

	tosValue := dscp << 2
	var sysErr error
	if err := rawConn.Control(func(fd uintptr) {
		sysErr = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_IP, syscall.IP_TOS, tosValue)
	}); err != nil {
		return fmt.Errorf("tcptls: control fd for DSCP: %w", err)
	}
	if sysErr != nil {
		return fmt.Errorf("tcptls: setsockopt IP_TOS=%d: %w", tosValue, sysErr)
	}
	return nil
}
