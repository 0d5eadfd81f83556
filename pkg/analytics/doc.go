// Package analytics computes usage statistics over the events table.
//
// The Service answers three questions: how many distinct users were active
// per day (DAU, optionally narrowed by a segment filter), which event types
// occur most often, and how well a daily signup cohort retains week over
// week. All aggregation happens in SQL; the service only shapes results.
package analytics
