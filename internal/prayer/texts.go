package prayer

const (
	textSignOfCross = "In the name of the Father, and of the Son, and of the Holy Spirit. Amen."

	textCreed = "I believe in God, the Father almighty, Creator of heaven and earth, " +
		"and in Jesus Christ, his only Son, our Lord, who was conceived by the Holy Spirit, " +
		"born of the Virgin Mary, suffered under Pontius Pilate, was crucified, died and was buried; " +
		"he descended into hell; on the third day he rose again from the dead; he ascended into heaven, " +
		"and is seated at the right hand of God the Father almighty; from there he will come to judge " +
		"the living and the dead. I believe in the Holy Spirit, the holy catholic Church, the communion " +
		"of saints, the forgiveness of sins, the resurrection of the body, and life everlasting. Amen."

	textOurFather = "Our Father, who art in heaven, hallowed be thy name; thy kingdom come, " +
		"thy will be done on earth as it is in heaven. Give us this day our daily bread, " +
		"and forgive us our trespasses, as we forgive those who trespass against us; " +
		"and lead us not into temptation, but deliver us from evil. Amen."

	textHailMary = "Hail Mary, full of grace, the Lord is with thee. Blessed art thou among women, " +
		"and blessed is the fruit of thy womb, Jesus. Holy Mary, Mother of God, pray for us sinners, " +
		"now and at the hour of our death. Amen."

	textGloryBe = "Glory be to the Father, and to the Son, and to the Holy Spirit, " +
		"as it was in the beginning, is now, and ever shall be, world without end. Amen."

	textAlleluia = "Alleluia."

	textFatima = "O my Jesus, forgive us our sins, save us from the fires of hell, " +
		"lead all souls to heaven, especially those in most need of thy mercy."

	textHailHolyQueen = "Hail, holy Queen, Mother of mercy, our life, our sweetness and our hope. " +
		"To thee do we cry, poor banished children of Eve; to thee do we send up our sighs, " +
		"mourning and weeping in this valley of tears. Turn then, most gracious advocate, " +
		"thine eyes of mercy toward us, and after this our exile show unto us the blessed fruit " +
		"of thy womb, Jesus. O clement, O loving, O sweet Virgin Mary."

	textFinalPrayer = "O God, whose only begotten Son, by his life, death, and resurrection, " +
		"has purchased for us the rewards of eternal life, grant, we beseech thee, that while " +
		"meditating on these mysteries of the most holy Rosary of the Blessed Virgin Mary, " +
		"we may imitate what they contain and obtain what they promise, through the same Christ our Lord. Amen."
)

var mysteryTitles = map[MysterySet][5]string{
	MysteriesJoyful: {
		"The Annunciation",
		"The Visitation",
		"The Nativity",
		"The Presentation in the Temple",
		"The Finding in the Temple",
	},
	MysteriesSorrowful: {
		"The Agony in the Garden",
		"The Scourging at the Pillar",
		"The Crowning with Thorns",
		"The Carrying of the Cross",
		"The Crucifixion",
	},
	MysteriesGlorious: {
		"The Resurrection",
		"The Ascension",
		"The Descent of the Holy Spirit",
		"The Assumption",
		"The Coronation of Mary",
	},
	MysteriesLuminous: {
		"The Baptism in the Jordan",
		"The Wedding at Cana",
		"The Proclamation of the Kingdom",
		"The Transfiguration",
		"The Institution of the Eucharist",
	},
}

// MysteryTitle returns the title of the n-th (1-based) mystery of a set.
func MysteryTitle(set MysterySet, n int) string {
	titles, ok := mysteryTitles[set]
	if !ok || n < 1 || n > 5 {
		return ""
	}
	return titles[n-1]
}
