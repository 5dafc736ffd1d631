// Package seed implements the catalog seeding subcommand.
package seed

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/datastore"
	"github.com/mkallio/herbid-go/internal/logging"
)

// sampleHerbs is the starter catalog of common medicinal herbs.
var sampleHerbs = []datastore.Herb{
	{
		CommonName:     "Tulsi (Holy Basil)",
		ScientificName: "Ocimum tenuiflorum",
		Uses:           "Used in traditional medicine for respiratory disorders, stress relief and immunity. Leaves are commonly brewed as herbal tea.",
		Description:    "An aromatic perennial plant revered in Ayurveda.",
	},
	{
		CommonName:     "Neem",
		ScientificName: "Azadirachta indica",
		Uses:           "Antiseptic and antifungal. Used for skin disorders, dental care and as a natural pesticide.",
		Description:    "A fast-growing tree in the mahogany family.",
	},
	{
		CommonName:     "Aloe Vera",
		ScientificName: "Aloe barbadensis miller",
		Uses:           "Gel soothes burns and skin irritation, supports digestion and wound healing.",
		Description:    "A succulent plant species with thick fleshy leaves.",
	},
	{
		CommonName:     "Turmeric",
		ScientificName: "Curcuma longa",
		Uses:           "Anti-inflammatory and antioxidant. Used for joint pain, digestion and wound care.",
		Description:    "A rhizomatous herbaceous perennial of the ginger family.",
	},
	{
		CommonName:     "Ginger",
		ScientificName: "Zingiber officinale",
		Uses:           "Relieves nausea, aids digestion and reduces inflammation. A common cold remedy.",
		Description:    "A flowering plant whose rhizome is widely used as a spice.",
	},
	{
		CommonName:     "Mint",
		ScientificName: "Mentha",
		Uses:           "Aids digestion, relieves headaches and freshens breath. Used in teas and balms.",
		Description:    "A genus of aromatic perennial herbs.",
	},
	{
		CommonName:     "Coriander",
		ScientificName: "Coriandrum sativum",
		Uses:           "Aids digestion and may help lower blood sugar. Seeds are used in traditional remedies.",
		Description:    "An annual herb in the family Apiaceae.",
	},
	{
		CommonName:     "Fenugreek",
		ScientificName: "Trigonella foenum-graecum",
		Uses:           "Supports lactation, helps regulate blood sugar and aids digestion.",
		Description:    "An annual plant with seeds used as a spice and supplement.",
	},
	{
		CommonName:     "Cumin",
		ScientificName: "Cuminum cyminum",
		Uses:           "Aids digestion and is rich in iron. Used for bloating and as an antimicrobial.",
		Description:    "A flowering plant whose dried seeds are a staple spice.",
	},
	{
		CommonName:     "Cardamom",
		ScientificName: "Elettaria cardamomum",
		Uses:           "Aids digestion, freshens breath and may help lower blood pressure.",
		Description:    "A herbaceous perennial known as the queen of spices.",
	},
}

// Command creates the seed subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the catalog with a starter set of medicinal herbs",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSeed(settings, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Seed even when the catalog already has entries")
	return cmd
}

func runSeed(settings *conf.Settings, force bool) error {
	ds := datastore.New(settings)
	if ds == nil {
		return fmt.Errorf("no database is enabled in the configuration")
	}
	if err := ds.Open(); err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logging.Error("Failed to close database", "error", err)
		}
	}()

	count, err := ds.CountHerbs()
	if err != nil {
		return err
	}
	if count > 0 && !force {
		fmt.Printf("Catalog already has %d herbs, skipping seed (use --force to override)\n", count)
		return nil
	}

	for i := range sampleHerbs {
		herb := sampleHerbs[i]
		if err := ds.SaveHerb(&herb); err != nil {
			return err
		}
		logging.Info("Seeded herb", "common_name", herb.CommonName)
	}

	fmt.Printf("Seeded %d herbs\n", len(sampleHerbs))
	return nil
}
