// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"fmt"
	"slices"
	"strings"
)

// Counter is a tally of attribute values in first-seen order.
type Counter struct {
	counts map[string]int
	order  []string
}

func (c *Counter) add(value string) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	if _, ok := c.counts[value]; !ok {
		c.order = append(c.order, value)
	}
	c.counts[value]++
}

// Get returns the number of occurrences of the given value.
func (c *Counter) Get(value string) int {
	return c.counts[value]
}

// CounterEntry is a single value of a Counter with its count.
type CounterEntry struct {
	Value string
	Count int
}

// MostCommon returns the n most common non-empty values, most common first. Ties keep the order
// in which the values were first seen. n <= 0 returns every value.
func (c *Counter) MostCommon(n int) []CounterEntry {
	entries := make([]CounterEntry, 0, len(c.order))
	for _, value := range c.order {
		if value != "" {
			entries = append(entries, CounterEntry{Value: value, Count: c.counts[value]})
		}
	}
	slices.SortStableFunc(entries, func(a, b CounterEntry) int {
		return b.Count - a.Count
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Stats is the distribution of sex, province and city over a list of chats.
type Stats struct {
	Total    int
	Sex      map[Sex]int
	Province Counter
	City     Counter
}

type userChat interface {
	userInfo() *User
}

func (u *User) userInfo() *User {
	return u
}

// CollectStats counts the attributes of the given chats. Chats that aren't users (groups)
// count towards the total with unknown sex and no location.
func CollectStats[T Chat](chats []T) *Stats {
	stats := &Stats{Total: len(chats), Sex: make(map[Sex]int)}
	for _, chat := range chats {
		var user *User
		if uc, ok := any(chat).(userChat); ok {
			user = uc.userInfo()
		}
		if user == nil {
			stats.Sex[SexUnknown]++
			stats.Province.add("")
			stats.City.add("")
			continue
		}
		stats.Sex[user.Sex]++
		stats.Province.add(user.Province)
		stats.City.add(user.City)
	}
	return stats
}

// StatsTextOptions controls the sections rendered by Stats.Text.
type StatsTextOptions struct {
	// Source is the name of the owner of the list, e.g. the bot's nickname or the group name.
	// When empty, the header only states the total.
	Source string
	// Title is what the users are to the source, e.g. "微信好友" or "群成员".
	Title string

	HideTotal    bool
	HideSex      bool
	TopProvinces int
	TopCities    int
}

// DefaultStatsTextOptions returns options that render every section with the top 10 provinces and cities.
func DefaultStatsTextOptions(source, title string) StatsTextOptions {
	return StatsTextOptions{Source: source, Title: title, TopProvinces: 10, TopCities: 10}
}

// Text renders a short human-readable summary of the stats.
func (s *Stats) Text(opts StatsTextOptions) string {
	var text strings.Builder
	if !opts.HideTotal {
		if opts.Source != "" {
			fmt.Fprintf(&text, "%s 共有 %d 位%s\n\n", opts.Source, s.Total, opts.Title)
		} else {
			fmt.Fprintf(&text, "共有 %d 位用户\n\n", s.Total)
		}
	}
	if s.Total == 0 {
		return text.String()
	}
	if !opts.HideSex {
		males, females := s.Sex[SexMale], s.Sex[SexFemale]
		fmt.Fprintf(&text, "男性: %d (%.1f%%)\n女性: %d (%.1f%%)\n\n",
			males, s.percent(males, 100), females, s.percent(females, 100))
	}
	if opts.TopProvinces > 0 {
		fmt.Fprintf(&text, "TOP %d 省份\n%s\n\n", opts.TopProvinces, s.topText(&s.Province, opts.TopProvinces))
	}
	if opts.TopCities > 0 {
		fmt.Fprintf(&text, "TOP %d 城市\n%s\n\n", opts.TopCities, s.topText(&s.City, opts.TopCities))
	}
	return text.String()
}

func (s *Stats) percent(count int, scale float64) float64 {
	return float64(count) / float64(s.Total) * scale
}

func (s *Stats) topText(counter *Counter, n int) string {
	top := counter.MostCommon(n)
	lines := make([]string, len(top))
	for i, entry := range top {
		lines[i] = fmt.Sprintf("%s: %d (%.2f%%)", entry.Value, entry.Count, s.percent(entry.Count, 100))
	}
	return strings.Join(lines, "\n")
}
