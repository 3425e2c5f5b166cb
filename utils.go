package dirshare

import (
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"time"
)

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return "localhost"
}

func nowTimestamp() Timestamp {
	now := time.Now()
	return Timestamp{
		Sec:  uint64(now.Unix()),
		Nsec: uint32(now.Nanosecond()),
	}
}

func participantID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
