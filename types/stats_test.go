// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statsFriends() []*Friend {
	raws := []RawContact{
		{UserName: "@a", Sex: 1, Province: "广东", City: "深圳"},
		{UserName: "@b", Sex: 2, Province: "广东", City: "广州"},
		{UserName: "@c", Sex: 1, Province: "北京", City: "北京"},
		{UserName: "@d"},
	}
	friends := make([]*Friend, len(raws))
	for i := range raws {
		friends[i] = NewChat(&raws[i], "").(*Friend)
	}
	return friends
}

func TestCollectStats(t *testing.T) {
	stats := CollectStats(statsFriends())
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Sex[SexMale])
	assert.Equal(t, 1, stats.Sex[SexFemale])
	assert.Equal(t, 1, stats.Sex[SexUnknown])
	assert.Equal(t, 2, stats.Province.Get("广东"))
	assert.Equal(t, 1, stats.Province.Get(""))
	assert.Equal(t, []CounterEntry{{"广东", 2}, {"北京", 1}}, stats.Province.MostCommon(0))
	assert.Equal(t, []CounterEntry{{"深圳", 1}, {"广州", 1}}, stats.City.MostCommon(2))
}

func TestCollectStatsMixedChats(t *testing.T) {
	chats := []Chat{
		NewChat(&RawContact{UserName: "@a", Sex: 2, City: "Paris"}, ""),
		NewChat(&RawContact{UserName: "@@g", NickName: "Group"}, ""),
	}
	stats := CollectStats(chats)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Sex[SexFemale])
	assert.Equal(t, 1, stats.Sex[SexUnknown])
	assert.Equal(t, []CounterEntry{{"Paris", 1}}, stats.City.MostCommon(0))
}

func TestStatsText(t *testing.T) {
	stats := CollectStats(statsFriends())
	opts := DefaultStatsTextOptions("Bot", "微信好友")
	opts.TopProvinces, opts.TopCities = 2, 2
	assert.Equal(t, "Bot 共有 4 位微信好友\n\n"+
		"男性: 2 (50.0%)\n女性: 1 (25.0%)\n\n"+
		"TOP 2 省份\n广东: 2 (50.00%)\n北京: 1 (25.00%)\n\n"+
		"TOP 2 城市\n深圳: 1 (25.00%)\n广州: 1 (25.00%)\n\n", stats.Text(opts))

	text := stats.Text(StatsTextOptions{HideSex: true, TopCities: 1})
	assert.Equal(t, "共有 4 位用户\n\nTOP 1 城市\n深圳: 1 (25.00%)\n\n", text)
}

func TestStatsTextEmpty(t *testing.T) {
	stats := CollectStats([]*Member{})
	require.Zero(t, stats.Total)
	assert.Equal(t, "共有 0 位用户\n\n", stats.Text(DefaultStatsTextOptions("", "")))
	assert.Empty(t, stats.Text(StatsTextOptions{HideTotal: true, TopCities: 10}))
}
