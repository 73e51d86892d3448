package v4l2

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"barscan/internal/camera"
	"barscan/internal/logging"
)

var videoNodePattern = regexp.MustCompile(`^video([0-9]+)$`)

type crawlFunc func(ctx context.Context) ([]crawler.Device, error)

// Enumerator lists V4L2 capture nodes from sysfs.
type Enumerator struct {
	sysRoot string
	crawl   crawlFunc
	logger  *slog.Logger
}

// NewEnumerator returns an enumerator backed by the udev sysfs crawler.
func NewEnumerator(logger *slog.Logger) *Enumerator {
	return &Enumerator{
		sysRoot: "/sys",
		crawl:   crawlVideoDevices,
		logger:  logging.NewComponentLogger(logger, "v4l2-enumerator"),
	}
}

// EnumerateVideoInputs returns primary capture nodes ordered by node number.
// Metadata nodes (sysfs index other than 0) are skipped.
func (e *Enumerator) EnumerateVideoInputs(ctx context.Context) ([]camera.RawDevice, error) {
	found, err := e.crawl(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate video devices: %w", err)
	}

	type node struct {
		number int
		device camera.RawDevice
	}
	nodes := make([]node, 0, len(found))
	for _, dev := range found {
		devname := filepath.Base(strings.TrimSpace(dev.Env["DEVNAME"]))
		match := videoNodePattern.FindStringSubmatch(devname)
		if match == nil {
			continue
		}
		sysDir := filepath.Join(e.sysRoot, dev.KObj)
		if index := readAttr(sysDir, "index"); index != "" && index != "0" {
			e.logger.Debug("skipping secondary video node",
				logging.String(logging.FieldDeviceID, "/dev/"+devname),
				logging.String("index", index),
			)
			continue
		}
		number, _ := strconv.Atoi(match[1])
		nodes = append(nodes, node{
			number: number,
			device: camera.RawDevice{
				ID:    "/dev/" + devname,
				Label: normalizeLabel(readAttr(sysDir, "name")),
				Kind:  camera.KindVideoInput,
			},
		})
	}

	slices.SortFunc(nodes, func(a, b node) int { return a.number - b.number })
	devices := make([]camera.RawDevice, 0, len(nodes))
	for _, n := range nodes {
		devices = append(devices, n.device)
	}
	return devices, nil
}

func readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// normalizeLabel collapses the "Name: Name-truncated" pattern UVC drivers
// report and title-cases all-lowercase names.
func normalizeLabel(raw string) string {
	label := strings.TrimSpace(raw)
	if head, tail, ok := strings.Cut(label, ": "); ok && strings.HasPrefix(head, strings.TrimSpace(tail)) {
		label = head
	}
	if label != "" && label == strings.ToLower(label) {
		label = cases.Title(language.Und).String(label)
	}
	return label
}

func crawlVideoDevices(ctx context.Context) ([]crawler.Device, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)

	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{"DEVNAME": `^video[0-9]+$`},
	})
	quit := crawler.ExistingDevices(queue, errs, rules)

	var (
		devices  []crawler.Device
		crawlErr error
		done     = ctx.Done()
	)
	for {
		select {
		case <-done:
			close(quit)
			done = nil
		case err := <-errs:
			if crawlErr == nil {
				crawlErr = err
			}
		case dev, ok := <-queue:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				select {
				case err := <-errs:
					if crawlErr == nil {
						crawlErr = err
					}
				default:
				}
				if crawlErr != nil && len(devices) == 0 {
					return nil, crawlErr
				}
				return devices, nil
			}
			devices = append(devices, dev)
		}
	}
}
