// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/canvas/internal/config"
	"github.com/holomush/canvas/internal/control"
	"github.com/holomush/canvas/internal/host"
	"github.com/holomush/canvas/internal/plugin"
	"github.com/holomush/canvas/pkg/pluginsdk"
	"github.com/holomush/canvas/pkg/view"
	"github.com/holomush/canvas/pkg/wire"
)

// clicker counts presses and echoes every "shout" back to itself once as
// "echo", exercising the InputEmitted round trip.
type clicker struct {
	mu     sync.Mutex
	name   string
	clicks int
	echoes int
	theme  string
}

func (c *clicker) Update(msg []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch string(msg) {
	case "click":
		c.clicks++
	case "shout":
		return []byte("echo"), nil
	case "echo":
		c.echoes++
	}
	return nil, nil
}

func (c *clicker) View(theme view.Theme) view.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.theme = theme.Name
	return view.Column(2,
		view.Text(c.name+" clicks="+strconv.Itoa(c.clicks)+" echoes="+strconv.Itoa(c.echoes)),
		view.Row(1,
			view.Button(view.Text("click"), []byte("click")),
			view.Button(view.Text("shout"), []byte("shout")),
		),
	)
}

func (c *clicker) themeName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.theme
}

type testHost struct {
	cfg     *config.Config
	host    *host.Host
	client  *control.Client
	cancel  context.CancelFunc
	stopped chan struct{}
	plugins []context.CancelFunc
	wg      sync.WaitGroup
}

func startHost(theme string) *testHost {
	dir, err := os.MkdirTemp("", "canvas-it")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { _ = os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.SocketPath = filepath.Join(dir, "canvas.sock")
	cfg.ControlSocket = filepath.Join(dir, "control.sock")
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ReplyTimeout = 500 * time.Millisecond
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.Theme = theme
	Expect(cfg.Validate()).To(Succeed())

	h, err := host.New(&cfg)
	Expect(err).NotTo(HaveOccurred())

	ctx, cancel := context.WithCancel(context.Background())
	th := &testHost{
		cfg:     &cfg,
		host:    h,
		client:  control.NewClient(cfg.ControlSocket),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go func() {
		defer GinkgoRecover()
		defer close(th.stopped)
		Expect(h.Run(ctx)).To(Succeed())
	}()
	Eventually(h.Ready).Should(BeTrue())

	DeferCleanup(th.stop)
	return th
}

func (th *testHost) stop() {
	for _, cancel := range th.plugins {
		cancel()
	}
	th.wg.Wait()
	th.cancel()
	Eventually(th.stopped, 5*time.Second).Should(BeClosed())
}

func (th *testHost) runPlugin(app pluginsdk.Application) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	th.plugins = append(th.plugins, cancel)
	th.wg.Add(1)
	go func() {
		defer GinkgoRecover()
		defer th.wg.Done()
		Expect(pluginsdk.Run(ctx, app, pluginsdk.WithSocketPath(th.cfg.SocketPath))).To(Succeed())
	}()
	return cancel
}

func (th *testHost) views() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := th.client.Views(ctx, false, false)
	Expect(err).NotTo(HaveOccurred())
	return out
}

func (th *testHost) press(id plugin.ID, path ...int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := th.client.Press(ctx, uint64(id), path)
	return err
}

func (th *testHost) pluginIDs() []plugin.ID {
	infos := th.host.Registry().Plugins()
	ids := make([]plugin.ID, len(infos))
	for i, info := range infos {
		ids[i] = info.ID
	}
	return ids
}

// idOf finds the plugin whose first text line starts with name.
func (th *testHost) idOf(name string) (plugin.ID, bool) {
	for id, root := range th.host.Registry().Views() {
		if label, ok := root.Find([]int{0}); ok && strings.HasPrefix(label.Text, name+" ") {
			return id, true
		}
	}
	return 0, false
}

func (th *testHost) dial() net.Conn {
	conn, err := net.Dial("unix", th.cfg.SocketPath)
	Expect(err).NotTo(HaveOccurred())
	return conn
}

func scrape(addr string) string {
	return fetch(addr, "/metrics")
}

func fetch(addr, path string) string {
	resp, err := http.Get("http://" + addr + path) //nolint:noctx // test helper
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return string(body)
}

var _ = Describe("Canvas host", func() {
	var th *testHost

	BeforeEach(func() {
		th = startHost("dark")
	})

	Describe("plugin lifecycle", func() {
		It("pushes the host theme and shows the first view", func() {
			app := &clicker{name: "alpha"}
			th.runPlugin(app)

			Eventually(th.views).Should(ContainSubstring("alpha clicks=0"))
			Eventually(app.themeName).Should(Equal("dark"))
		})

		It("keeps one panel per plugin with distinct ids", func() {
			th.runPlugin(&clicker{name: "alpha"})
			th.runPlugin(&clicker{name: "beta"})

			Eventually(th.views).Should(And(
				ContainSubstring("alpha clicks=0"),
				ContainSubstring("beta clicks=0"),
			))
			ids := th.pluginIDs()
			Expect(ids).To(HaveLen(2))
			Expect(ids[0]).NotTo(Equal(ids[1]))
		})

		It("removes the view when a plugin disconnects", func() {
			stopAlpha := th.runPlugin(&clicker{name: "alpha"})
			th.runPlugin(&clicker{name: "beta"})
			Eventually(th.views).Should(And(ContainSubstring("alpha"), ContainSubstring("beta")))

			stopAlpha()
			Eventually(th.host.Registry().Len).Should(Equal(1))
			Expect(th.views()).NotTo(ContainSubstring("alpha"))
			Expect(th.views()).To(ContainSubstring("beta"))
		})
	})

	Describe("input routing", func() {
		It("delivers button presses to the plugin that drew the button", func() {
			th.runPlugin(&clicker{name: "alpha"})
			th.runPlugin(&clicker{name: "beta"})
			Eventually(th.views).Should(And(ContainSubstring("alpha clicks=0"), ContainSubstring("beta clicks=0")))

			alphaID, ok := th.idOf("alpha")
			Expect(ok).To(BeTrue())

			Expect(th.press(alphaID, 1, 0)).To(Succeed())
			Eventually(th.views).Should(ContainSubstring("alpha clicks=1"))
			Expect(th.press(alphaID, 1, 0)).To(Succeed())
			Eventually(th.views).Should(ContainSubstring("alpha clicks=2"))
			Expect(th.views()).To(ContainSubstring("beta clicks=0"))
		})

		It("routes input a plugin emits back to that plugin", func() {
			th.runPlugin(&clicker{name: "alpha"})
			Eventually(th.views).Should(ContainSubstring("alpha"))
			id, ok := th.idOf("alpha")
			Expect(ok).To(BeTrue())

			Expect(th.press(id, 1, 1)).To(Succeed())
			Eventually(th.views).Should(ContainSubstring("echoes=1"))
		})

		It("rejects presses on nodes that are not buttons", func() {
			th.runPlugin(&clicker{name: "alpha"})
			Eventually(th.views).Should(ContainSubstring("alpha"))
			id, ok := th.idOf("alpha")
			Expect(ok).To(BeTrue())

			Expect(th.press(id, 0)).NotTo(Succeed())
			Expect(th.press(plugin.ID(999), 1, 0)).NotTo(Succeed())
		})
	})

	Describe("misbehaving peers", func() {
		It("unregisters a plugin that disconnects mid-frame", func() {
			conn := th.dial()
			Eventually(th.host.Registry().Len).Should(Equal(1))

			header := make([]byte, 4)
			binary.LittleEndian.PutUint32(header, 64)
			_, err := conn.Write(append(header, 0x01, 0x02))
			Expect(err).NotTo(HaveOccurred())
			Expect(conn.Close()).To(Succeed())

			Eventually(th.host.Registry().Len).Should(Equal(0))
		})

		It("unregisters a plugin that never replies", func() {
			conn := th.dial()
			defer func() { _ = conn.Close() }()
			Eventually(th.host.Registry().Len).Should(Equal(1))
			Eventually(th.host.Registry().Len, 3*time.Second).Should(Equal(0))
		})

		It("keeps serving well-behaved plugins", func() {
			th.runPlugin(&clicker{name: "steady"})
			bad := th.dial()
			_, _ = bad.Write([]byte{0xff, 0xff, 0xff, 0x7f})
			_ = bad.Close()

			Eventually(th.views).Should(ContainSubstring("steady clicks=0"))
			Consistently(th.host.Registry().Len, 300*time.Millisecond).Should(BeNumerically(">=", 1))
		})

		It("sends a raw peer the theme as its first event", func() {
			conn := th.dial()
			defer func() { _ = conn.Close() }()
			wc := wire.NewConn(conn)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			var ev wire.Event
			for {
				ok, err := wc.ReadFrame(ctx, &ev)
				Expect(err).NotTo(HaveOccurred())
				if ok {
					break
				}
			}
			Expect(ev.Kind).To(Equal(wire.EventThemeChanged))
			Expect(ev.Theme.Name).To(Equal("dark"))
		})
	})

	Describe("observability", func() {
		It("exports plugin gauges and disconnect reasons", func() {
			stop := th.runPlugin(&clicker{name: "alpha"})
			Eventually(th.host.Registry().Len).Should(Equal(1))
			Eventually(func() string { return scrape(th.host.MetricsAddr()) }).
				Should(ContainSubstring("canvas_plugins_connected 1"))
			Eventually(func() string { return fetch(th.host.MetricsAddr(), host.SurfacePath) }).
				Should(ContainSubstring("alpha clicks=0"))

			stop()
			Eventually(func() string { return scrape(th.host.MetricsAddr()) }).
				Should(MatchRegexp(`canvas_plugin_disconnects_total\{reason="(peer_closed|probe_failed)"\} 1`))
		})
	})
})
