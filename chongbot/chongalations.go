package chongbot

import (
	"math/rand"
	"sort"
	"strings"
)

// Chongalation is one revered quote from the community's scripture.
type Chongalation struct {
	Quote     string `json:"quote"`
	Author    string `json:"author"`
	Reference string `json:"reference"`
	Emoji     string `json:"emoji"`
}

var chongalations = []Chongalation{
	{
		Quote:     "A dollar a pickle is probably a really good pickle",
		Author:    "Prophet Wemstoid",
		Reference: "Chongalations 17:13",
		Emoji:     "🥒",
	},
	{
		Quote:     "I like it big.",
		Author:    "Yuna the Lustful toward Hodir",
		Reference: "Chongalations 6:34",
		Emoji:     "💯",
	},
	{
		Quote:     "I'm expanding on the cook",
		Author:    "Chef Poppineddies",
		Reference: "Chongalations 19:4",
		Emoji:     "🧪",
	},
	{
		Quote:     "I miss Shortnoob.",
		Author:    "Frosted",
		Reference: "A Journal of the Walmart Mage",
		Emoji:     "😞",
	},
	{
		Quote:     "When I raid I have fun you break that.",
		Author:    "Frosted",
		Reference: "A Journal of the Walmart Mage",
		Emoji:     "🧙",
	},
	{
		Quote:     "I love when people's pets die.",
		Author:    "Chongla",
		Reference: "Book of Revelations, Nov Edition",
		Emoji:     "💀",
	},
	{
		Quote:     "Have you ever thought of bubbling?",
		Author:    "Sourced from Qzq's Book of Questions, Volume III, recorded by Vallance",
		Reference: "Chongalations",
		Emoji:     "💡",
	},
	{
		Quote:     ".... yea like my girlfriend is level 13.... WAIT",
		Author:    "Fizzlewig",
		Reference: "Fizzlewig's Fucked Up Phrases, pg 13",
		Emoji:     "😬",
	},
	{
		Quote:     "I might have room temperature IQ but please, enlighten me...",
		Author:    "Frosted",
		Reference: "Frosted's Compendium of Stolen Phrases, Book 1 page 14",
		Emoji:     "🦥",
	},
	{
		Quote:     "She hit my heart but she wasnt hit capped",
		Author:    "Frosted",
		Reference: "Frosted's Love Encyclopedia, Chongalations 5:10",
		Emoji:     "💔",
	},
	{
		Quote:     "Oops I accidentally drank my demon-healing elixir...",
		Author:    "Wemstoid",
		Reference: "The Wemstold Saga, Chongalations 04:19",
		Emoji:     "👹",
	},
	{
		Quote:     "Gabagoo",
		Author:    "Fizzlewig",
		Reference: "The Forbidden Text of Aprus, Chongulations Infinity",
		Emoji:     "🍝",
	},
	{
		Quote:     "Silly-don",
		Author:    "Vallance",
		Reference: "Vallance's Fever Dreams, Chongulations 04:05",
		Emoji:     "😶‍🌫️",
	},
	{
		Quote: "Ay, fun fact for McDonalds- if you just get a McDouble with mac " +
			"sauce and shredded lettuce, you get a McDouble without the bun in the " +
			"middle, and it's like - I mean you get a Big Mac, and it's like, " +
			"twice as like, less expensive.",
		Author:    "Fizzle",
		Reference: "Fizzle's Compendium of Life Hacks, Chongalations 2:24",
		Emoji:     "🍔",
	},
	{
		Quote:     "Let's just die Illidan and move on!",
		Author:    "Frosted",
		Reference: "Chongalations 25:12",
		Emoji:     "⏳",
	},
	{
		Quote:     "BAMF has a fucking mental handicap",
		Author:    "Electricgoat",
		Reference: "The Electric Illidan Saga, Chongalations 2:17",
		Emoji:     "♿",
	},
	{
		Quote: "Well you know, whenever I feel like doing it, I just bait a " +
			"pedophile every now and again",
		Author:    "Fizzle",
		Reference: "Where there's a Fizz, there's a Way, Chongalations 12:1",
		Emoji:     "🎣",
	},
	{
		Quote:     "Making fun of poor kids is BIS",
		Author:    "Fizzle",
		Reference: "Fizzle's Comtemplations on Socioeconomic Classism, Chongalations 18:3",
		Emoji:     "💸",
	},
	{
		Quote:     "Yeah thats sure",
		Author:    "Vallance",
		Reference: "Vallance's Brain Farts, Chongalations 1:18",
		Emoji:     "💨",
	},
	{
		Quote:     "I shit my pants.",
		Author:    "Tankbad",
		Reference: "Tankbad and the car ride home, Chongulations 1:87",
		Emoji:     "💩",
	},
	{
		Quote:     "friend but I will have to retire because I am not a tank magician",
		Author:    "Pheebie",
		Reference: "The Hirene Story Arc, Chongalations 13:12",
		Emoji:     "🧙",
	},
	{
		Quote:     "I am not going to take criticism from someone who cant even click a cube",
		Author:    "Graperino",
		Reference: "International, Chongalations 17:38",
		Emoji:     "🧊",
	},
	{
		Quote:     "Please stop telling guidlies that they look breedable",
		Author:    "Tankbad",
		Reference: "Chongalations 09:34",
		Emoji:     "💋",
	},
	{
		Quote: "Guys you aren't doing it right, you need to up down under the " +
			"water inside the platform but avoid the mobs. Down up sideways, flash " +
			"heal under the water move northeast accept the quest up top and then " +
			"under!",
		Author:    "Grapejelly",
		Reference: "Chongalations 06:90 (We killed The Luker That Night)",
		Emoji:     "🐙",
	},
	{
		Quote:     "Who was on triangle, come on guys",
		Author:    "Frosted (the guy on triangle)",
		Reference: "The Trials of Magtheridon, Chongalations 6:10",
		Emoji:     "🔻",
	},
	{
		Quote:     "Spongler has me blocked??",
		Author:    "Graperino",
		Reference: "Dark times and Bright walls, Chongalations 04:20",
		Emoji:     "🙅",
	},
	{
		Quote:     "It's just a fart.",
		Author:    "Tankbad",
		Reference: "Song of Tankbad, Chongalations 2:14",
		Emoji:     "😓",
	},
	{
		Quote:     "when she",
		Author:    "Pheebie",
		Reference: "Trials and Pheebielations, Chongalations 01:01",
		Emoji:     "👩",
	},
	{
		Quote:     "AND YOU'RE STILL CASTING CHAIN LIGHTNING!",
		Author:    "Frosted",
		Reference: "The book of Frosted, Chongalations 27:13",
		Emoji:     "⚡",
	},
}

// RandomChongalation returns a random quote.
func RandomChongalation() Chongalation {
	return chongalations[rand.Intn(len(chongalations))]
}

// ChongalationByAuthor returns a random quote whose author contains
// the given name, case-insensitively. The second return value is false
// if no author matches.
func ChongalationByAuthor(authorName string) (Chongalation, bool) {
	needle := strings.ToLower(authorName)
	var matches []Chongalation
	for _, c := range chongalations {
		if strings.Contains(strings.ToLower(c.Author), needle) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return Chongalation{}, false
	}
	return matches[rand.Intn(len(matches))], true
}

// ChongalationAuthors returns the sorted, deduplicated author list.
func ChongalationAuthors() []string {
	seen := map[string]struct{}{}
	var authors []string
	for _, c := range chongalations {
		if _, ok := seen[c.Author]; ok {
			continue
		}
		seen[c.Author] = struct{}{}
		authors = append(authors, c.Author)
	}
	sort.Strings(authors)
	return authors
}
