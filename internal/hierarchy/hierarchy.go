// Package hierarchy implements the per-country administrative name index: a
// single owning goroutine holding one map, queried over a request channel
// and torn down with the country's curation pass, in the manner of a
// single-flight cache server.
package hierarchy

import (
	"context"

	"github.com/quay/claircore-geoindex/internal/model"
)

// Labels is the four progressively-truncated admin text labels resolved for
// one lookup.
type Labels struct {
	Admin1Txt, Admin2Txt, Admin3Txt, Admin4Txt model.Optional
}

// lookupRequest is one name_lookup(record, reply_to) call: the query
// carries a populated record's own (country, admin1..admin4), and reply_to
// receives all four labels the service can resolve from it.
type lookupRequest struct {
	country model.AdminKey // Admin1..Admin4 hold the record's own values
	reply   chan Labels
}

// Service is the ephemeral hierarchy lookup server for one country. The
// zero value is not usable; construct with New.
type Service struct {
	requests chan lookupRequest
	done     chan struct{}
}

// New builds the admin index from admins and starts the owning goroutine.
// The caller must call Close when done with the service.
func New(admins []model.GeonameRecord) *Service {
	index := make(map[model.AdminKey]string, len(admins))
	for _, r := range admins {
		index[model.AdminKey{
			Country: r.CountryCode,
			Admin1:  r.Admin1,
			Admin2:  r.Admin2,
			Admin3:  r.Admin3,
			Admin4:  r.Admin4,
		}] = r.Name
	}

	s := &Service{
		requests: make(chan lookupRequest),
		done:     make(chan struct{}),
	}
	go s.serve(index)
	return s
}

func (s *Service) serve(index map[model.AdminKey]string) {
	defer close(s.done)
	for req := range s.requests {
		req.reply <- resolve(index, req.country)
	}
}

// resolve performs the four progressively-truncated lookups: a missing
// admin component short-circuits the remaining lookups to absent.
func resolve(index map[model.AdminKey]string, q model.AdminKey) Labels {
	var l Labels
	if !q.Admin1.Present {
		return l
	}
	if name, ok := index[model.AdminKey{Country: q.Country, Admin1: q.Admin1}]; ok {
		l.Admin1Txt = model.Opt(name)
	}
	if !q.Admin2.Present {
		return l
	}
	if name, ok := index[model.AdminKey{Country: q.Country, Admin1: q.Admin1, Admin2: q.Admin2}]; ok {
		l.Admin2Txt = model.Opt(name)
	}
	if !q.Admin3.Present {
		return l
	}
	if name, ok := index[model.AdminKey{Country: q.Country, Admin1: q.Admin1, Admin2: q.Admin2, Admin3: q.Admin3}]; ok {
		l.Admin3Txt = model.Opt(name)
	}
	if !q.Admin4.Present {
		return l
	}
	if name, ok := index[model.AdminKey{Country: q.Country, Admin1: q.Admin1, Admin2: q.Admin2, Admin3: q.Admin3, Admin4: q.Admin4}]; ok {
		l.Admin4Txt = model.Opt(name)
	}
	return l
}

// Close shuts down the owning goroutine. Callers must not call Lookup
// concurrently with or after Close.
func (s *Service) Close() {
	close(s.requests)
	<-s.done
}

// Lookup sends one name_lookup(record, reply_to) message carrying rec's own
// admin key and returns the resolved labels.
func (s *Service) Lookup(ctx context.Context, rec model.GeonameRecord) (Labels, error) {
	req := lookupRequest{
		country: model.AdminKey{
			Country: rec.CountryCode,
			Admin1:  rec.Admin1,
			Admin2:  rec.Admin2,
			Admin3:  rec.Admin3,
			Admin4:  rec.Admin4,
		},
		reply: make(chan Labels, 1),
	}
	if err := ctx.Err(); err != nil {
		return Labels{}, err
	}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return Labels{}, ctx.Err()
	}
	select {
	case l := <-req.reply:
		return l, nil
	case <-ctx.Done():
		return Labels{}, ctx.Err()
	}
}
