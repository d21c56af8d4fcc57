package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job id does not exist in storage.
	ErrJobNotFound = errors.New("scraper job not found")

	// ErrJobNotActive is returned when execution is requested for a job
	// whose status is not ACTIVE.
	ErrJobNotActive = errors.New("scraper job is not active")

	// ErrJobRunning is returned when another execution of the same job
	// already holds the single-flight lock.
	ErrJobRunning = errors.New("scraper job is already running")

	// ErrScraperUnregistered is returned when no scraper is registered
	// for a job's declared type.
	ErrScraperUnregistered = errors.New("no scraper registered for job type")
)
