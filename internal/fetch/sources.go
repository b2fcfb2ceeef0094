package fetch

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/snapetech/iptvextract/internal/httpclient"
)

// Result holds one run's fetched documents.
type Result struct {
	Primary []*Document // same order as the requested URLs
	EPG     *Document   // nil when no guide was requested or it failed
	EPGErr  error
}

// FetchAll fetches every primary source and the optional guide concurrently.
// Any primary failure fails the whole call. A guide failure does not: it is
// reported in Result.EPGErr and the run continues without it.
func (f *Fetcher) FetchAll(ctx context.Context, primary []string, epgURL string) (*Result, error) {
	res := &Result{Primary: make([]*Document, len(primary))}
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range primary {
		g.Go(func() error {
			doc, err := f.Fetch(gctx, u)
			if err != nil {
				return err
			}
			res.Primary[i] = doc
			return nil
		})
	}
	if epgURL != "" {
		g.Go(func() error {
			res.EPG, res.EPGErr = f.FetchEPG(gctx, epgURL)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// FetchEPG fetches the guide source. On a TLS failure with InsecureEPGFallback
// set it tries once more without certificate verification.
func (f *Fetcher) FetchEPG(ctx context.Context, rawURL string) (*Document, error) {
	doc, err := f.Fetch(ctx, rawURL)
	if err == nil || !f.InsecureEPGFallback {
		return doc, err
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindTLS {
		return nil, err
	}
	log.WithField("source", rawURL).WithError(fe.Err).Warn("guide TLS verification failed; retrying without verification")
	insecure := *f
	insecure.Client = httpclient.Insecure(f.client())
	insecure.Retries = 0
	insecure.InsecureEPGFallback = false
	return insecure.Fetch(ctx, rawURL)
}
