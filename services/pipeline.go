// services/pipeline.go
package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dwdown/dwdown/config"
	"github.com/dwdown/dwdown/database"
	"github.com/dwdown/dwdown/filter"
	"github.com/dwdown/dwdown/models"
	"github.com/dwdown/dwdown/notify"
	"github.com/dwdown/dwdown/processing"
	"github.com/dwdown/dwdown/scraper"
	"github.com/dwdown/dwdown/storage"
)

// Pipeline wires the acquisition stages together: fetch from the open-data
// server, decompress and convert, merge per time step, and sync with the
// object store. Store, Runs and Notifier are optional; a nil member simply
// disables that stage's side channel.
type Pipeline struct {
	Config   *config.Config
	Store    storage.ObjectStore
	Runs     *database.RunStore
	Notifier *notify.Notifier
}

// Criteria builds the filename gates from the configuration.
func (p *Pipeline) Criteria() filter.Criteria {
	f := p.Config.Filter
	return filter.Criteria{
		Prefix:                f.Prefix,
		Suffix:                f.Suffix,
		IncludePatterns:       f.IncludePatterns,
		IncludeMatchAny:       f.IncludeMatchAny,
		ExcludePatterns:       f.ExcludePatterns,
		Timesteps:             filter.TimestepTokens(f.MinTimestep, f.MaxTimestep),
		SkipTimestepVariables: f.SkipTimestepVariables,
		VariablePatterns:      f.VariablePatterns,
	}
}

// Fetch downloads the configured variables from the forecast server. Each
// variable has its own listing directory; results are aggregated across
// variables.
func (p *Pipeline) Fetch() (models.FetchResult, error) {
	cfg := p.Config
	source := scraper.ForecastSource{
		BaseURL: cfg.Source.BaseURL,
		Model:   cfg.Source.Model,
		Run:     cfg.Source.Run,
	}
	variables := cfg.Source.Variables
	if len(variables) == 0 {
		return models.FetchResult{}, fmt.Errorf("no variables configured under source.variables")
	}

	started := time.Now()
	criteria := p.Criteria()
	var total models.FetchResult
	for i, variable := range variables {
		// Variables are fetched sequentially; the configured delay paces
		// the listing requests as well as the retry passes.
		if i > 0 && cfg.Transfer.Delay() > 0 {
			time.Sleep(cfg.Transfer.Delay())
		}
		baseURL, err := source.URL(variable)
		if err != nil {
			return total, err
		}
		d := scraper.NewDownloader(baseURL, cfg.Paths.Download, cfg.Paths.Logs)
		d.Client = &http.Client{Timeout: cfg.Transfer.Timeout()}
		d.Workers = cfg.Transfer.Workers
		d.Delay = cfg.Transfer.Delay()
		d.Retries = cfg.Transfer.Retries

		result, err := d.Fetch(criteria, cfg.Transfer.CheckExisting)
		if err != nil {
			return total, fmt.Errorf("failed to fetch variable %s: %w", variable, err)
		}
		total.Succeeded = append(total.Succeeded, result.Succeeded...)
		total.Failed = append(total.Failed, result.Failed...)
	}

	p.recordRun("fetch", started, total)
	p.notifyResult("Forecast download finished", total)
	return total, nil
}

// Process decompresses the raw archives and converts the extracted GRIB
// files to CSV.
func (p *Pipeline) Process() ([]string, error) {
	cfg := p.Config
	started := time.Now()

	decompressor := &processing.Decompressor{
		DownloadPath:  cfg.Paths.Download,
		ExtractedPath: cfg.Paths.Extracted,
	}
	extracted, err := decompressor.DecompressAll()
	if err != nil {
		return nil, err
	}
	log.Printf("Pipeline: %d files extracted.", len(extracted))

	converter := &processing.Converter{
		ExtractedPath: cfg.Paths.Extracted,
		ConvertedPath: cfg.Paths.Converted,
		Mapping:       models.DefaultVariableMapping(),
	}
	if cfg.Geo.Enabled {
		converter.Geo = &processing.GeoFilter{
			StartLat: cfg.Geo.StartLat,
			EndLat:   cfg.Geo.EndLat,
			StartLon: cfg.Geo.StartLon,
			EndLon:   cfg.Geo.EndLon,
		}
	}
	converted, err := converter.ConvertAll()
	if err != nil {
		return nil, err
	}

	p.recordRun("process", started, models.FetchResult{Succeeded: converted})
	p.notify("Conversion finished",
		notify.PlainMessage(fmt.Sprintf("%d files converted to CSV.", len(converted))))
	return converted, nil
}

// MergeAll joins the converted per-variable CSVs for every configured time
// step and writes one wide CSV per step. It returns the written paths.
func (p *Pipeline) MergeAll() ([]string, error) {
	cfg := p.Config
	merger := &processing.Merger{
		FilesPath:        cfg.Paths.Converted,
		Mapping:          models.DefaultVariableMapping(),
		RequiredColumns:  cfg.Merge.RequiredColumns,
		JoinMethod:       cfg.Merge.JoinMethod,
		VariablePatterns: cfg.Filter.VariablePatterns,
	}

	timeSteps := cfg.Merge.TimeSteps
	if len(timeSteps) == 0 {
		for t := cfg.Filter.MinTimestep; t <= cfg.Filter.MaxTimestep; t++ {
			timeSteps = append(timeSteps, t)
		}
	}

	var written []string
	for _, step := range timeSteps {
		path, err := merger.MergeToFile(step, cfg.Source.Variables, cfg.Paths.Converted)
		if err != nil {
			return written, fmt.Errorf("failed to merge time step %d: %w", step, err)
		}
		if path != "" {
			written = append(written, path)
		}
	}
	p.notify("Merge finished", notify.MessageList(written))
	return written, nil
}

// Upload pushes the converted tree into the object store.
func (p *Pipeline) Upload(ctx context.Context) (models.FetchResult, error) {
	if p.Store == nil {
		return models.FetchResult{}, fmt.Errorf("no object store configured")
	}
	cfg := p.Config
	started := time.Now()

	u := &storage.BucketUploader{
		Store:        p.Store,
		Bucket:       cfg.ObjectStore.Bucket,
		FilesPath:    cfg.Paths.Converted,
		RemotePrefix: cfg.ObjectStore.RemotePrefix,
		LogPath:      cfg.Paths.Logs,
		Workers:      cfg.Transfer.Workers,
		Delay:        cfg.Transfer.Delay(),
		Retries:      cfg.Transfer.Retries,
		LogUploads:   true,
	}
	result, err := u.Upload(ctx, filter.Criteria{})
	if err != nil {
		return result, err
	}
	p.recordRun("upload", started, result)
	p.notifyResult("Upload finished", result)
	return result, nil
}

// Sync mirrors the bucket into the local download tree, using the filename
// gates to restrict what comes down.
func (p *Pipeline) Sync(ctx context.Context) (models.FetchResult, error) {
	if p.Store == nil {
		return models.FetchResult{}, fmt.Errorf("no object store configured")
	}
	cfg := p.Config
	started := time.Now()

	d := &storage.BucketDownloader{
		Store:        p.Store,
		Bucket:       cfg.ObjectStore.Bucket,
		FilesPath:    cfg.Paths.Download,
		LogPath:      cfg.Paths.Logs,
		Workers:      cfg.Transfer.Workers,
		Delay:        cfg.Transfer.Delay(),
		Retries:      cfg.Transfer.Retries,
		LogDownloads: true,
	}
	result, err := d.Download(ctx, p.Criteria(), cfg.ObjectStore.RemotePrefix, cfg.Transfer.CheckIntegrity)
	if err != nil {
		return result, err
	}
	p.recordRun("sync", started, result)
	p.notifyResult("Bucket sync finished", result)
	return result, nil
}

// Cleanup removes raw and extracted files that later stages have already
// consumed.
func (p *Pipeline) Cleanup() error {
	cfg := p.Config
	if err := processing.PruneProcessed(cfg.Paths.Download, cfg.Paths.Extracted, cfg.Paths.Converted); err != nil {
		return err
	}
	log.Println("Pipeline: cleanup finished.")
	return nil
}

// Run executes the full chain: fetch, process, merge, upload.
func (p *Pipeline) Run(ctx context.Context) error {
	if _, err := p.Fetch(); err != nil {
		return err
	}
	if _, err := p.Process(); err != nil {
		return err
	}
	if _, err := p.MergeAll(); err != nil {
		return err
	}
	if p.Store != nil {
		if _, err := p.Upload(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) recordRun(component string, started time.Time, result models.FetchResult) {
	if p.Runs == nil {
		return
	}
	err := p.Runs.SaveRunSummary(models.RunSummary{
		Component:  component,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Succeeded:  len(result.Succeeded),
		Failed:     len(result.Failed),
		Corrupted:  len(result.Corrupted),
	})
	if err != nil {
		log.Printf("Pipeline: %v", err)
	}
}

func (p *Pipeline) notify(title string, message notify.Message) {
	if p.Notifier == nil {
		return
	}
	p.Notifier.Send(title, message)
}

func (p *Pipeline) notifyResult(title string, result models.FetchResult) {
	if p.Notifier == nil {
		return
	}
	message := notify.CategorizedMessages{}
	if len(result.Succeeded) > 0 {
		message["succeeded"] = result.Succeeded
	}
	if len(result.Failed) > 0 {
		message["failed"] = result.Failed
	}
	if len(result.Corrupted) > 0 {
		message["corrupted"] = result.Corrupted
	}
	if len(message) == 0 {
		p.Notifier.Send(title, notify.PlainMessage("Nothing to transfer."))
		return
	}
	p.Notifier.Send(title, message)
}
