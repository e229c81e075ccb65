package gateway

import "github.com/nao1215/credgw/pkg/idservice"

// exampleTemplate は POST /template で作成するサンプルのクレデンシャルテンプレートを返す。
// 呼び出しごとに新しい値を返す。
func exampleTemplate() idservice.CreateTemplateRequest {
	return idservice.CreateTemplateRequest{
		Name:                  "An Example Credential",
		Title:                 "Example Credential",
		Description:           "A credential for Trinsic's SDK samples",
		AllowAdditionalFields: false,
		Fields: map[string]idservice.TemplateField{
			"firstName": {
				Title:       "First Name",
				Description: "Given name of holder",
				Type:        idservice.FieldTypeString,
			},
			"lastName": {
				Title:       "Last Name",
				Description: "Surname of holder",
				Optional:    true,
				Type:        idservice.FieldTypeString,
			},
			"age": {
				Title:       "Age",
				Description: "Age in years of holder",
				Type:        idservice.FieldTypeNumber,
			},
		},
		FieldOrdering: map[string]idservice.FieldOrdering{
			"firstName": {Order: 0, Section: "Name"},
			"lastName":  {Order: 1, Section: "Name"},
			// セクション名の綴りはリモートに登録済みの既存テンプレートと揃えている
			"age": {Order: 2, Section: "Miscellanous"},
		},
		AppleWalletOptions: &idservice.AppleWalletOptions{
			PrimaryField:    "firstName",
			SecondaryFields: []string{"lastName"},
			AuxiliaryFields: []string{"age"},
		},
	}
}
