package netinfo

import (
	"fmt"
	"net"
	"os"
)

// HostInfo 启动时打印给店员的访问地址信息。
type HostInfo struct {
	Hostname string
	IP       string
	URLs     []string
}

// GetHostInfo 取本机主机名和局域网 IP，拼出店内终端可用的访问 URL。
func GetHostInfo(port int) HostInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	ip := "127.0.0.1"
	if addrs, err := net.LookupIP(hostname); err == nil {
		for _, a := range addrs {
			if v4 := a.To4(); v4 != nil && !v4.IsLoopback() {
				ip = v4.String()
				break
			}
		}
	}

	return HostInfo{
		Hostname: hostname,
		IP:       ip,
		URLs: []string{
			fmt.Sprintf("http://%s:%d", hostname, port),
			fmt.Sprintf("http://%s:%d", ip, port),
			fmt.Sprintf("http://127.0.0.1:%d", port),
		},
	}
}
