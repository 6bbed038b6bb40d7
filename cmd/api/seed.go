package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"worknest/internal/accounts"
	"worknest/internal/jobs"
)

// demoPassword is only ever used for the in-memory development store.
const demoPassword = "worknest-demo"

type demoAccount struct {
	email   string
	name    string
	company *accounts.CompanyInput
	seeker  *accounts.JobSeekerInput
	posts   []jobs.PostInput
}

var demoAccounts = []demoAccount{
	{
		email: "talent@northwind.test",
		name:  "Northwind Talent",
		company: &accounts.CompanyInput{
			Name:     "Northwind Logistics",
			Location: "Hamburg, Germany",
			Website:  "https://northwind.test",
			XAccount: "@northwind",
			About:    "Freight routing and warehouse software for mid-sized carriers.",
		},
		posts: []jobs.PostInput{
			{
				Title:           "Senior Go Engineer",
				EmploymentType:  "Full-time",
				Location:        "Remote (EU)",
				SalaryFrom:      85000,
				SalaryTo:        110000,
				Description:     "Own the routing API and its Postgres storage layer.",
				ListingDuration: 60,
				Benefits:        []string{"401k", "Remote first", "Learning budget"},
				Status:          jobs.StatusActive,
			},
			{
				Title:           "Platform Engineer",
				EmploymentType:  "Full-time",
				Location:        "Hamburg, Germany",
				SalaryFrom:      70000,
				SalaryTo:        90000,
				Description:     "Run our Kubernetes clusters and CI pipelines.",
				ListingDuration: 30,
				Benefits:        []string{"Gym membership"},
				Status:          jobs.StatusActive,
			},
			{
				Title:           "Data Analyst",
				EmploymentType:  "Part-time",
				Location:        "Hamburg, Germany",
				SalaryFrom:      30000,
				SalaryTo:        40000,
				Description:     "Draft listing, not yet published.",
				ListingDuration: 30,
				Status:          jobs.StatusDraft,
			},
		},
	},
	{
		email: "jobs@bluefin.test",
		name:  "Bluefin Hiring",
		company: &accounts.CompanyInput{
			Name:     "Bluefin Health",
			Location: "Lisbon, Portugal",
			Website:  "https://bluefin.test",
			About:    "Scheduling software for outpatient clinics.",
		},
		posts: []jobs.PostInput{
			{
				Title:           "Backend Developer",
				EmploymentType:  "Contract",
				Location:        "Lisbon, Portugal",
				SalaryFrom:      50000,
				SalaryTo:        65000,
				Description:     "Build appointment APIs used by 400 clinics.",
				ListingDuration: 45,
				Benefits:        []string{"Health insurance", "Flexible hours"},
				Status:          jobs.StatusActive,
			},
		},
	},
	{
		email: "ada@seekers.test",
		name:  "Ada Byron",
		seeker: &accounts.JobSeekerInput{
			Name:   "Ada Byron",
			About:  "Backend engineer who enjoys distributed systems.",
			Resume: "https://cdn.worknest.test/resumes/ada.pdf",
		},
	},
}

// seedDemoData creates demo companies, a job seeker and their listings. The seeker applies to
// the first active listing so every screen has data.
func seedDemoData(ctx context.Context, accountSvc *accounts.Service, jobSvc *jobs.Service) error {
	var seeker accounts.User
	var firstActive *jobs.Post

	for _, demo := range demoAccounts {
		user, err := accountSvc.CreateLocalAccount(ctx, demo.email, demoPassword, demo.name)
		if err != nil {
			return fmt.Errorf("create %s: %w", demo.email, err)
		}

		switch {
		case demo.company != nil:
			if _, user, err = accountSvc.CreateCompanyProfile(ctx, user.ID, *demo.company); err != nil {
				return fmt.Errorf("company profile for %s: %w", demo.email, err)
			}
		case demo.seeker != nil:
			if _, user, err = accountSvc.CreateJobSeekerProfile(ctx, user.ID, *demo.seeker); err != nil {
				return fmt.Errorf("job seeker profile for %s: %w", demo.email, err)
			}
			seeker = user
		}

		for _, input := range demo.posts {
			post, err := jobSvc.CreatePost(ctx, user, input)
			if err != nil {
				return fmt.Errorf("post %q: %w", input.Title, err)
			}
			if firstActive == nil && post.Status == jobs.StatusActive {
				firstActive = &post
			}
		}
	}

	if firstActive == nil || seeker.ID == uuid.Nil {
		return nil
	}
	if _, _, err := jobSvc.SaveJob(ctx, seeker, firstActive.ID); err != nil {
		return fmt.Errorf("save demo job: %w", err)
	}
	if _, err := jobSvc.Apply(ctx, seeker, firstActive.ID, "I would love to work on your routing API."); err != nil {
		return fmt.Errorf("apply to demo job: %w", err)
	}
	return nil
}
