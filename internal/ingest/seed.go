package ingest

import (
	"time"

	"github.com/threadjuice/threadjuice/internal/models"
)

// seedPosts back the simulated story a run falls back to when no source
// produced a candidate. One is picked per day.
var seedPosts = []models.Post{
	{
		ExternalID:  "seed-casserole",
		Title:       "My neighbor has been stealing my casserole dishes for a year",
		Body:        "Every time someone on our street has a baby or a funeral I drop off a casserole. My dishes never come back. Last week I saw all eleven of them stacked in my neighbor's kitchen window, labeled with HER name. When I asked, she said I had gifted them. I was furious. I left a note on her door listing every dish by date. Now the whole street has picked sides and the HOA group chat is a nightmare.",
		Author:      "casserole_queen",
		Community:   "neighborsfromhell",
		Score:       4200,
		UpvoteRatio: 0.93,
		NumComments: 610,
		Comments: []models.Comment{
			{Author: "dish_detective", Body: "Eleven dishes. ELEVEN. That's not a misunderstanding, that's a collection.", Score: 3100},
			{Author: "hoa_survivor", Body: "The note with dates is legendary. NTA.", Score: 1800},
			{Author: "petty_pete", Body: "Label the bottoms with a paint pen next time.", Score: 950},
		},
	},
	{
		ExternalID:  "seed-reply-all",
		Title:       "My boss replied all to 4,000 employees with his opinion of my presentation",
		Body:        "I gave a presentation to leadership on Monday. On Tuesday my boss meant to forward it to his wife with a rude comment about me and instead hit reply all on the company-wide thread. HR called me in to ask if I was okay. I said I was fine. Then the CEO replied all asking for a copy of my slides because they were the best he'd seen this quarter. My boss has been very quiet.",
		Author:      "slide_deck_survivor",
		Community:   "antiwork",
		Score:       8800,
		UpvoteRatio: 0.97,
		NumComments: 1240,
		Comments: []models.Comment{
			{Author: "hr_lurker", Body: "The CEO reply all is the best plot twist I have read this week.", Score: 5200},
			{Author: "quiet_quitter", Body: "Frame that email.", Score: 2100},
		},
	},
	{
		ExternalID:  "seed-wedding-date",
		Title:       "My sister moved her wedding to my due date and called me selfish for complaining",
		Body:        "I'm due on June 14th. My sister knew that when she announced her wedding for September. Last month she moved it to June 14th because the venue had a discount. When I said I probably couldn't come she told the family I was making her wedding about me. My mom is on her side. My husband thinks the whole thing is absurd. I'm honestly heartbroken and a little angry.",
		Author:      "due_in_june",
		Community:   "AmItheAsshole",
		Score:       6100,
		UpvoteRatio: 0.88,
		NumComments: 2300,
		Comments: []models.Comment{
			{Author: "verdict_bot_fan", Body: "NTA. She picked a discount over her sister. That's the story.", Score: 4400},
			{Author: "wedding_planner_irl", Body: "Venues do not discount that much. Something else is going on.", Score: 1300},
		},
	},
}

func seedPost(now time.Time) models.Post {
	post := seedPosts[now.UTC().YearDay()%len(seedPosts)]
	post.Platform = models.PlatformSimulated
	post.CreatedAt = now.UTC()
	post.Comments = append([]models.Comment(nil), post.Comments...)
	return post
}
