package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

// atelier-probe polls a running server's health endpoints. Exit code 0
// means every probe in the run succeeded; 1 means at least one failed.
func main() {
	base := flag.String("url", "http://127.0.0.1:8080", "server base URL")
	interval := flag.Duration("interval", 2*time.Second, "delay between probes")
	count := flag.Int("count", 1, "number of probe rounds (0 = forever)")
	timeout := flag.Duration("timeout", 3*time.Second, "per-request timeout")
	flag.Parse()

	c := &fasthttp.Client{
		Name:         "atelier-probe",
		ReadTimeout:  *timeout,
		WriteTimeout: *timeout,
	}

	failed := false
	for i := 0; *count == 0 || i < *count; i++ {
		if i > 0 {
			time.Sleep(*interval)
		}
		for _, path := range []string{"/healthz", "/readyz"} {
			status, body, err := probe(c, *base+path, *timeout)
			if err != nil {
				fmt.Printf("%s %-8s error: %v\n", time.Now().Format(time.TimeOnly), path, err)
				failed = true
				continue
			}
			ok := status == fasthttp.StatusOK
			if !ok {
				failed = true
			}
			fmt.Printf("%s %-8s %d %s\n", time.Now().Format(time.TimeOnly), path, status, body)
		}
	}
	if failed {
		os.Exit(1)
	}
}

func probe(c *fasthttp.Client, url string, timeout time.Duration) (int, string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if err := c.DoTimeout(req, resp, timeout); err != nil {
		return 0, "", err
	}
	return resp.StatusCode(), string(resp.Body()), nil
}
