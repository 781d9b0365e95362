// cmd/trackrecord/main.go

// trackrecord records the live VATSIM feed into a track archive that
// towerview can play back with -replay, and manages an optional GCS
// bucket of shared archives.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/towercab/towerview/pkg/feed"
	"github.com/towercab/towerview/pkg/math"
	"github.com/towercab/towerview/pkg/util"
)

var (
	outFile = flag.String("out", "", "output archive file (default tracks-<timestamp>.msgpack.zst)")
	minutes = flag.Int("minutes", 60, "how long to record")
	center  = flag.String("center", "", "only record aircraft near \"lat,lon\"")
	radius  = flag.Float64("radius", 40, "radius in nm of the recorded region around -center")

	bucket     = flag.String("bucket", "", "GCS bucket to upload the archive to after recording")
	dryRun     = flag.Bool("dryrun", false, "don't upload or delete anything in the bucket")
	listRemote = flag.Bool("list", false, "list the archives in the bucket and exit")
	fetchPath  = flag.String("fetch", "", "download the given archive from the bucket and exit")
	deletePath = flag.String("delete", "", "delete the given archive from the bucket and exit")
)

func main() {
	flag.Parse()

	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "usage: trackrecord [flags]\nwhere [flags] may be:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *listRemote || *fetchPath != "" || *deletePath != "" {
		sb, err := makeBackend()
		if err != nil {
			LogFatal("%v", err)
		}
		defer sb.Close()

		switch {
		case *listRemote:
			err = listArchives(sb)
		case *fetchPath != "":
			err = fetchArchive(sb, *fetchPath, *outFile)
		default:
			err = deleteArchive(sb, *deletePath)
		}
		if err != nil {
			LogFatal("%v", err)
		}
		return
	}

	out, err := record()
	if err != nil {
		LogFatal("%v", err)
	}

	if *bucket != "" {
		sb, err := makeBackend()
		if err != nil {
			LogFatal("%v", err)
		}
		defer sb.Close()

		if err := upload(sb, out); err != nil {
			LogFatal("%v", err)
		}
	}
}

func makeBackend() (StorageBackend, error) {
	if *bucket == "" {
		return nil, fmt.Errorf("no -bucket specified")
	}

	sb, err := MakeGCSBackend(*bucket)
	if err != nil {
		return nil, err
	}
	if *dryRun {
		sb = &DryRunBackend{g: sb}
	}
	return sb, nil
}

// record polls the live feed until the recording time is up (or the user
// interrupts) and returns the path of the written archive.
func record() (string, error) {
	var opts feed.VATSIMOptions
	if *center != "" {
		var lat, lon float32
		if _, err := fmt.Sscanf(*center, "%f,%f", &lat, &lon); err != nil {
			return "", fmt.Errorf("%q: expected \"lat,lon\": %v", *center, err)
		}
		opts.Center = math.Point2LL{lon, lat}
		opts.RadiusNM = float32(*radius)
	}

	out := *outFile
	if out == "" {
		out = time.Now().UTC().Format("tracks-20060102-1504.msgpack.zst")
	}

	f, err := os.Create(out)
	if err != nil {
		return "", err
	}

	rec, err := feed.NewRecorder(f, time.Now())
	if err != nil {
		f.Close()
		return "", err
	}

	src := feed.NewVATSIMSource(opts, nil)
	defer src.Stop()

	LogInfo("recording for %d minutes to %s", *minutes, out)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	deadline := time.After(time.Duration(*minutes) * time.Minute)

	// The feed only refreshes every 15 seconds; Record drops sets it has
	// already seen, so polling every second just picks up new fetches
	// promptly.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-deadline:
			break loop
		case <-sig:
			LogInfo("interrupted; closing the archive")
			break loop
		case <-ticker.C:
			if err := rec.Record(src.CurrentSet()); err != nil {
				f.Close()
				return "", err
			}
		}
	}

	if err := rec.Close(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	LogInfo("recorded %d frames to %s", rec.Frames(), out)
	return out, nil
}

func upload(sb StorageBackend, local string) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	remote := "tracks/" + filepath.Base(local)
	n, err := sb.Store(remote, f)
	if err != nil {
		return err
	}
	LogInfo("uploaded %s (%s)", remote, util.ByteCount(n))

	return updateManifest(sb)
}

func listArchives(sb StorageBackend) error {
	paths, err := sb.List("tracks/")
	if err != nil {
		return err
	}

	for _, path := range util.SortedMapKeys(paths) {
		fmt.Printf("%-60s %10s\n", path, util.ByteCount(paths[path]))
	}
	return nil
}

func fetchArchive(sb StorageBackend, remote, out string) error {
	if out == "" {
		out = filepath.Base(remote)
	}

	r, err := sb.OpenRead(remote)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(out)
	if err != nil {
		return err
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	LogInfo("fetched %s to %s (%s)", remote, out, util.ByteCount(n))
	return nil
}

func deleteArchive(sb StorageBackend, remote string) error {
	if err := sb.Delete(remote); err != nil {
		return err
	}
	LogInfo("deleted %s", remote)

	return updateManifest(sb)
}

// Manifest is the tracks/manifest.msgpack.zst object: every archive in
// the bucket with its size, so a viewer can offer a replay list without
// paging through the bucket itself.
type Manifest struct {
	Generated time.Time
	Archives  map[string]int64
}

func updateManifest(sb StorageBackend) error {
	paths, err := sb.List("tracks/")
	if err != nil {
		return err
	}

	m := Manifest{Generated: time.Now().UTC(), Archives: make(map[string]int64)}
	for path, size := range paths {
		if !strings.HasSuffix(path, "manifest.msgpack.zst") {
			m.Archives[strings.TrimPrefix(path, "tracks/")] = size
		}
	}

	n, err := sb.StoreObject("tracks/manifest.msgpack.zst", m)
	if err != nil {
		return err
	}

	LogInfo("stored %d archives in the manifest (%s)", len(m.Archives), util.ByteCount(n))
	return nil
}

func LogInfo(msg string, args ...any) {
	log.Printf("INFO "+msg, args...)
}

func LogFatal(msg string, args ...any) {
	log.Printf("FATAL "+msg, args...)
	os.Exit(1)
}
